package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/auth"
	dapi "github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/messages"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/persistence"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/status"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// FileSaver saves staged files
type FileSaver interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// FileReader loads staged and exported files
type FileReader interface {
	LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error)
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB saves batches and serves statuses
type DB interface {
	InsertBatch(ctx context.Context, batch *persistence.Batch) error
	InsertStatus(ctx context.Context, item *persistence.Status) error
	LoadBatch(ctx context.Context, id string) (*persistence.Batch, error)
	LoadStatus(ctx context.Context, id string) (*persistence.Status, error)
	AcquireLease(ctx context.Context, id string) error
	ReleaseLease(ctx context.Context, id string) error
	Live(ctx context.Context) error
}

// Warehouse runs archive selects on the remote SQL warehouse
type Warehouse interface {
	Execute(ctx context.Context, statement string) (*dapi.Rows, error)
}

// Queries builds archive statements
type Queries interface {
	ArchivedBatches() string
	ArchivedInvoices(batchName string) (string, error)
	ArchivedChecks(batchName string) (string, error)
}

// Data keeps data required for service work
type Data struct {
	Port        int
	MaxFiles    int
	MaxFileSize int64
	Saver       FileSaver
	Reader      FileReader
	DB          DB
	MsgSender   MsgSender
	Gate        *auth.Gate
	Sessions    *auth.Sessions
	Warehouse   Warehouse
	Queries     Queries
}

const (
	defaultMaxFiles    = 8
	defaultMaxFileSize = int64(75) * 1024 * 1024
)

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP VATCHK portal service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	e.Server.WriteTimeout = 5 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Saver == nil {
		return errors.New("no file saver")
	}
	if data.Reader == nil {
		return errors.New("no file reader")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Gate == nil {
		return fmt.Errorf("no gate")
	}
	if data.Sessions == nil {
		return fmt.Errorf("no sessions")
	}
	if data.Warehouse == nil {
		return fmt.Errorf("no warehouse")
	}
	if data.Queries == nil {
		return fmt.Errorf("no queries")
	}
	if data.MaxFiles == 0 {
		data.MaxFiles = defaultMaxFiles
	}
	if data.MaxFileSize == 0 {
		data.MaxFileSize = defaultMaxFileSize
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vatchk_portal", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/login", login(data))
	e.POST("/logout", logout(data))
	e.POST("/batches", submit(data), requireRole(data, auth.RoleOperational))
	e.GET("/batches/:id/status", batchStatus(data), requireRole(data, auth.RoleOperational))
	e.GET("/batches/:id/files/:file", download(data), requireRole(data, auth.RoleOperational))
	e.HEAD("/batches/:id/files/:file", download(data), requireRole(data, auth.RoleOperational))
	e.GET("/archive/batches", archivedBatches(data), requireRole(data, auth.RoleReporting))
	e.GET("/archive/invoices/:batch", archivedTable(data, tableInvoices, false), requireRole(data, auth.RoleReporting))
	e.GET("/archive/invoices/:batch/csv", archivedTable(data, tableInvoices, true), requireRole(data, auth.RoleReporting))
	e.GET("/archive/checks/:batch", archivedTable(data, tableChecks, false), requireRole(data, auth.RoleReporting))
	e.GET("/archive/checks/:batch/csv", archivedTable(data, tableChecks, true), requireRole(data, auth.RoleReporting))
	e.GET("/archive/results/:batch/xlsx", archivedXLSX(data), requireRole(data, auth.RoleReporting))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusServiceUnavailable, "not live")
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func login(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		var req loginRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no password")
		}
		role, err := data.Gate.Authenticate(req.Password)
		if err != nil {
			goapp.Log.Warn().Err(err).Msg("login failed")
			return echo.NewHTTPError(http.StatusUnauthorized, "wrong password")
		}
		ses := data.Sessions.Start(role)
		return c.JSON(http.StatusOK, loginResponse{Token: ses.Token, Role: string(ses.Role)})
	}
}

func logout(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if token := takeToken(c); token != "" {
			data.Sessions.Drop(token)
		}
		return c.NoContent(http.StatusOK)
	}
}

func takeToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	return strings.TrimPrefix(h, "Bearer ")
}

func requireRole(data *Data, required auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := takeToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "no token")
			}
			ses := data.Sessions.Get(token)
			if ses == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "wrong token")
			}
			if !ses.Role.Allows(required) {
				return echo.NewHTTPError(http.StatusForbidden, "wrong role")
			}
			return next(c)
		}
	}
}

type submitResult struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Rejected []api.RejectedFile `json:"rejected,omitempty"`
}

func submit(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("submit method")()
		ctx := c.Request().Context()

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		if err := validateFormParams(form); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		files, fHeaders, err := takeFiles(form, api.PrmFile)
		for _, f := range files {
			fInt := f
			defer fInt.Close()
		}
		if err != nil && len(files) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input form")
		}
		// the cap applies to the submitted count, before any size filtering
		if len(files) > data.MaxFiles {
			err := &api.ErrTooManyFiles{Max: data.MaxFiles, Got: len(files)}
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		files, fHeaders, rejected := filterBySize(files, fHeaders, data.MaxFileSize)
		if len(files) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "all files rejected")
		}

		bd := persistence.Batch{}
		bd.ID = uuid.New().String()
		bd.Name, err = utils.NormalizeBatchName(c.FormValue(api.PrmName), time.Now())
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		bd.FileNames, err = validateExtractFiles(fHeaders)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		bd.Created = time.Now()
		bd.Email = utils.ToSQLStr(c.FormValue(api.PrmEmail))
		bd.FileCount = len(files)

		if err := data.DB.AcquireLease(ctx, bd.ID); err != nil {
			if errors.Is(err, api.ErrBatchInProgress) {
				return echo.NewHTTPError(http.StatusConflict, err.Error())
			}
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		release := func() {
			if err := data.DB.ReleaseLease(ctx, bd.ID); err != nil {
				goapp.Log.Error().Err(err).Send()
			}
		}

		if err := data.DB.InsertBatch(ctx, &bd); err != nil {
			goapp.Log.Error().Err(err).Send()
			release()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if err := data.DB.InsertStatus(ctx, &persistence.Status{ID: bd.ID,
			Status: status.Created.String(), Created: time.Now()}); err != nil {
			goapp.Log.Error().Err(err).Send()
			release()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if err := saveFiles(ctx, data.Saver, bd.ID, files, fHeaders); err != nil {
			goapp.Log.Error().Err(err).Send()
			release()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		if err := data.MsgSender.SendMessage(ctx, &messages.BatchMessage{
			QueueMessage: amessages.QueueMessage{ID: bd.ID}, Name: bd.Name}, messages.Batch); err != nil {
			goapp.Log.Error().Err(err).Send()
			release()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}

		return c.JSON(http.StatusOK, submitResult{ID: bd.ID, Name: bd.Name, Rejected: rejected})
	}
}

type statusResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	Invoices     int32  `json:"invoices"`
	FailedChecks int32  `json:"failedChecks"`
}

func batchStatus(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		st, err := data.DB.LoadStatus(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		if st == nil {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.JSON(http.StatusOK, statusResult{ID: st.ID, Status: st.Status,
			Error: utils.FromSQLStr(st.Error), ErrorCode: utils.FromSQLStr(st.ErrorCode),
			Invoices: utils.FromSQLInt32OrZero(st.Invoices), FailedChecks: utils.FromSQLInt32OrZero(st.FailedChecks)})
	}
}

func download(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("download method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		fileName := c.Param("file")
		if fileName == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No file")
		}
		fullName, err := utils.MakeValidateFileName(id, fileName)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "Wrong name")
		}
		return serveFile(c, data, fullName)
	}
}

func serveFile(c echo.Context, data *Data, name string) error {
	goapp.Log.Info().Str("file", name).Msg("loading")
	file, err := data.Reader.LoadFile(c.Request().Context(), name)
	if err != nil {
		if isNotFound(err) {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file")
	}
	defer file.Close()
	stGetter, ok := file.(interface{ Stat() (fs.FileInfo, error) })
	if !ok {
		goapp.Log.Error().Msg(`file does implement "interface{ Stat() (fs.FileInfo, error)"`)
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}
	stat, err := stGetter.Stat()
	if err != nil {
		if isNotFound(err) {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}

	w := c.Response()
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(stat.Name()))
	http.ServeContent(w, c.Request(), stat.Name(), stat.ModTime(), file)
	return nil
}

func isNotFound(err error) bool {
	var errTest minio.ErrorResponse
	return errors.As(err, &errTest) && errTest.StatusCode == http.StatusNotFound
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func validateFormParams(form *multipart.Form) error {
	allowed := map[string]bool{api.PrmName: true, api.PrmEmail: true}
	for k := range form.Value {
		if !allowed[k] {
			return fmt.Errorf("unknown parameter '%s'", k)
		}
	}
	return validateFormFiles(form)
}

func validateFormFiles(form *multipart.Form) error {
	check := make(map[string]bool)
	if form != nil {
		for k := range form.File {
			check[k] = true
		}
	}
	if !check[api.PrmFile] {
		return errors.New("no form file parameter 'file'")
	}
	delete(check, api.PrmFile)
	for i := 2; i <= 20; i++ {
		pn := api.PrmFile + strconv.Itoa(i)
		if !check[pn] {
			break
		}
		delete(check, pn)
	}
	for k := range check {
		return fmt.Errorf("unexpected form file parameters '%v'", k)
	}
	return nil
}

func takeFiles(form *multipart.Form, paramName string) ([]multipart.File, []*multipart.FileHeader, error) {
	file, handler, err := takeFile(form, paramName)
	if err != nil {
		return nil, nil, fmt.Errorf("no form param file: %w", err)
	}
	fRes := []multipart.File{file}
	fhRes := []*multipart.FileHeader{handler}
	for i := 2; i <= 20; i++ {
		file, handler, err := takeFile(form, paramName+strconv.Itoa(i))
		if err == http.ErrMissingFile {
			break
		}
		if err != nil {
			return fRes, nil, fmt.Errorf("error reading form param '%s' : %w", paramName+strconv.Itoa(i), err)
		}
		fRes = append(fRes, file)
		fhRes = append(fhRes, handler)
	}
	return fRes, fhRes, nil
}

func takeFile(form *multipart.Form, paramName string) (multipart.File, *multipart.FileHeader, error) {
	handler := takeFirst(form.File[paramName], nil)
	if handler == nil {
		return nil, nil, http.ErrMissingFile
	}
	file, err := handler.Open()
	return file, handler, err
}

func takeFirst[K interface{}](a []K, d K) K {
	if len(a) > 0 {
		return a[0]
	}
	return d
}

func filterBySize(files []multipart.File, fHeaders []*multipart.FileHeader, max int64) (
	[]multipart.File, []*multipart.FileHeader, []api.RejectedFile) {
	resF := []multipart.File{}
	resH := []*multipart.FileHeader{}
	rejected := []api.RejectedFile{}
	for i, h := range fHeaders {
		if h.Size > max {
			rejected = append(rejected, api.RejectedFile{Name: h.Filename,
				Reason: fmt.Sprintf("file too big: %d, max allowed %d", h.Size, max)})
			continue
		}
		resF = append(resF, files[i])
		resH = append(resH, h)
	}
	return resF, resH, rejected
}

func validateExtractFiles(fHeaders []*multipart.FileHeader) ([]string, error) {
	res := []string{}
	for _, h := range fHeaders {
		ext := filepath.Ext(h.Filename)
		if !utils.SupportInvoiceExt(strings.ToLower(ext)) {
			return nil, fmt.Errorf("wrong file extension: %s", ext)
		}
		fn, err := utils.MakeValidateFileName("", h.Filename)
		if err != nil {
			return nil, fmt.Errorf("wrong file name: %s", h.Filename)
		}
		res = append(res, fn)
	}
	return res, nil
}

func saveFiles(ctx context.Context, fs FileSaver, id string, files []multipart.File, fHeaders []*multipart.FileHeader) error {
	for i, f := range files {
		if fHeaders[i].Filename == "" {
			return errors.New("no file name in multipart")
		}
		fn, err := utils.MakeValidateFileName(id, fHeaders[i].Filename)
		if err != nil {
			return fmt.Errorf("can't save '%s': %w", fHeaders[i].Filename, err)
		}
		if err = fs.SaveFile(ctx, fn, f, fHeaders[i].Size); err != nil {
			return fmt.Errorf("can't save '%s': %w", fn, err)
		}
	}
	return nil
}
