package utils

import (
	"net/http"
	"strconv"

	"github.com/airenas/go-app/pkg/goapp"

	_ "net/http/pprof"
)

// RunPerfEndpoint serves pprof on debug.port when the key is set
func RunPerfEndpoint() {
	port := goapp.Config.GetInt("debug.port")
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port - pprof disabled")
		return
	}
	goapp.Log.Info().Int("port", port).Msg("starting pprof endpoint")
	if err := http.ListenAndServe(":"+strconv.Itoa(port), nil); err != nil {
		goapp.Log.Error().Err(err).Msg("can't serve pprof endpoint")
	}
}
