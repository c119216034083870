// files.go — HTTP handlers конвертации и отдачи документов.
// Convert, View, отдача PDF/HTML результатов и исходников из кэша.
package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"

	"github.com/bigkaa/goartstore/docview/internal/api/errors"
	"github.com/bigkaa/goartstore/docview/internal/api/generated"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/service"
)

// DocumentConverter — конвейер resolve → convert.
type DocumentConverter interface {
	ResolveAndConvert(ctx context.Context, src model.SourceDescriptor, format model.OutputFormat) (*service.Result, error)
}

// FilesHandler — обработчик endpoints /aview.
type FilesHandler struct {
	gateway     DocumentConverter
	downloadSvc *service.DownloadService
	// publicURL — внешний адрес сервиса для ссылок на результат
	publicURL string
}

// NewFilesHandler создаёт обработчик endpoints /aview.
func NewFilesHandler(gateway DocumentConverter, downloadSvc *service.DownloadService, publicURL string) *FilesHandler {
	return &FilesHandler{
		gateway:     gateway,
		downloadSvc: downloadSvc,
		publicURL:   publicURL,
	}
}

// Convert обрабатывает GET /aview/convert.
// Возвращает ссылку на результат и признак попадания в кэш.
func (h *FilesHandler) Convert(w http.ResponseWriter, r *http.Request, params generated.ConvertParams) {
	src, err := model.FromParams(deref(params.Url), deref(params.Path))
	if err != nil {
		errors.FromError(w, err)
		return
	}

	output := ""
	if params.Output != nil {
		output = string(*params.Output)
	}
	format, err := model.ParseOutputFormat(output)
	if err != nil {
		errors.FromError(w, err)
		return
	}

	res, err := h.gateway.ResolveAndConvert(r.Context(), src, format)
	if err != nil {
		errors.FromError(w, err)
		return
	}

	resp := generated.ConvertResponse{
		Url:              h.publicURL + "/aview/" + string(format) + "/" + url.PathEscape(res.OutputName()),
		OriginalFilename: res.OriginalFilename,
		OutputFormat:     generated.ConvertResponseOutputFormat(format),
		CacheHit:         res.CacheHit,
		ConversionTime:   math.Round(res.Elapsed.Seconds()*1000) / 1000,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// View обрабатывает GET /aview/view: конвертирует в HTML и
// перенаправляет на страницу просмотра.
func (h *FilesHandler) View(w http.ResponseWriter, r *http.Request, params generated.ViewParams) {
	src, err := model.FromParams(deref(params.Url), deref(params.Path))
	if err != nil {
		errors.FromError(w, err)
		return
	}

	res, err := h.gateway.ResolveAndConvert(r.Context(), src, model.FormatHTML)
	if err != nil {
		errors.FromError(w, err)
		return
	}

	http.Redirect(w, r, "/aview/html/"+url.PathEscape(res.OutputName()), http.StatusFound)
}

// ServePDF обрабатывает GET /aview/pdf/{filename}.
func (h *FilesHandler) ServePDF(w http.ResponseWriter, r *http.Request, filename generated.Filename) {
	if derr := h.downloadSvc.ServeResult(w, r, model.FormatPDF, filename); derr != nil {
		errors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
	}
}

// ServeHTML обрабатывает GET /aview/html/{filename}.
func (h *FilesHandler) ServeHTML(w http.ResponseWriter, r *http.Request, filename generated.Filename) {
	if derr := h.downloadSvc.ServeResult(w, r, model.FormatHTML, filename); derr != nil {
		errors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
	}
}

// ServeCache обрабатывает GET /aview/cache/{filename}.
func (h *FilesHandler) ServeCache(w http.ResponseWriter, r *http.Request, filename generated.Filename) {
	if derr := h.downloadSvc.ServeSource(w, r, filename); derr != nil {
		errors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
