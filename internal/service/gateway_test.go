package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bigkaa/goartstore/docview/internal/convert"
	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
)

type gatewayEnv struct {
	gateway  *Gateway
	recorder *memRecorder
	renders  *atomic.Int32
	outDir   string
}

// setupGateway собирает resolver + движок + gateway поверх временных директорий.
// CSV-рендер обёрнут счётчиком вызовов.
func setupGateway(t *testing.T) *gatewayEnv {
	t.Helper()

	env := setupResolver(t)
	out, err := filestore.New(filepath.Join(env.store.Dir(), "converted"))
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	engine := convert.NewEngine(out, nil, env.recorder,
		convert.EngineConfig{RenderWorkers: 2, SourceURLPrefix: "/aview/cache"}, discardLogger())

	renders := &atomic.Int32{}
	csvRenderer, ok := engine.Renderer(model.KindCSV)
	if !ok {
		t.Fatal("нет встроенного CSV-рендера")
	}
	engine.RegisterRenderer(model.KindCSV, convert.RendererFunc(
		func(ctx context.Context, in convert.RenderInput, w io.Writer) error {
			renders.Add(1)
			return csvRenderer.Render(ctx, in, w)
		}))

	gw := NewGateway(env.resolver, engine, env.recorder, discardLogger())
	return &gatewayEnv{gateway: gw, recorder: env.recorder, renders: renders, outDir: out.Dir()}
}

// TestResolveAndConvert_CSVEndToEnd — локальный CSV → HTML-таблица,
// повторный запрос — попадание в кэш без повторного разбора.
func TestResolveAndConvert_CSVEndToEnd(t *testing.T) {
	env := setupGateway(t)

	src := filepath.Join(t.TempDir(), "report.csv")
	if err := os.WriteFile(src, []byte("name,qty,price\napple,3,1.5\npear,7,2.25\n"), 0o640); err != nil {
		t.Fatalf("ошибка создания CSV: %v", err)
	}
	ctx := context.Background()

	first, err := env.gateway.ResolveAndConvert(ctx, model.NewLocalPath(src), model.FormatHTML)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if first.CacheHit {
		t.Error("первый запрос должен быть промахом")
	}
	if first.OriginalFilename != "report.csv" {
		t.Errorf("имя файла: получено %s", first.OriginalFilename)
	}
	if filepath.Dir(first.OutputPath) != env.outDir || !strings.HasSuffix(first.OutputPath, ".html") {
		t.Errorf("путь результата: получено %s", first.OutputPath)
	}

	html, err := os.ReadFile(first.OutputPath)
	if err != nil {
		t.Fatalf("результат не найден: %v", err)
	}
	page := string(html)
	if !strings.Contains(page, "<table") {
		t.Error("страница должна содержать таблицу")
	}
	if strings.Count(page, "<th>") != 3 {
		t.Errorf("ожидалось 3 столбца, найдено %d", strings.Count(page, "<th>"))
	}
	if strings.Count(page, "<tr>") != 3 {
		t.Errorf("ожидалось 3 строки (заголовок + 2), найдено %d", strings.Count(page, "<tr>"))
	}
	if !strings.Contains(page, "строк: 2") || !strings.Contains(page, "столбцов: 3") {
		t.Error("страница должна показывать число строк и столбцов")
	}

	second, err := env.gateway.ResolveAndConvert(ctx, model.NewLocalPath(src), model.FormatHTML)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !second.CacheHit {
		t.Error("второй запрос должен быть попаданием")
	}
	if second.OutputPath != first.OutputPath {
		t.Errorf("пути не совпадают: %s != %s", second.OutputPath, first.OutputPath)
	}
	if !second.Output.Reused {
		t.Error("результат должен быть переиспользован")
	}
	if env.renders.Load() != 1 {
		t.Errorf("CSV должен разбираться один раз, вызовов: %d", env.renders.Load())
	}

	env.recorder.mu.Lock()
	defer env.recorder.mu.Unlock()
	if len(env.recorder.conversions) != 2 {
		t.Fatalf("ожидалось 2 записи журнала, получено %d", len(env.recorder.conversions))
	}
	rec := env.recorder.conversions[1]
	if rec.SourceKind != "path" || rec.SourceValue != src || !rec.CacheHit || rec.FileType != "html" || rec.OutputFormat != "html" {
		t.Errorf("запись журнала: получено %+v", rec)
	}
	// В журнал пишется размер HTML-страницы, а не исходного CSV
	if rec.FileSize != int64(len(html)) {
		t.Errorf("FileSize: получено %d, ожидалось %d (размер результата)", rec.FileSize, len(html))
	}
}

// TestResolveAndConvert_PDFPassthrough — PDF в PDF отдаётся из кэша без конвертации.
func TestResolveAndConvert_PDFPassthrough(t *testing.T) {
	env := setupGateway(t)

	src := filepath.Join(t.TempDir(), "doc.pdf")
	os.WriteFile(src, []byte("%PDF-1.4\n"), 0o640)

	res, err := env.gateway.ResolveAndConvert(context.Background(), model.NewLocalPath(src), model.FormatPDF)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !res.Output.Passthrough || res.OutputPath != res.Entry.LocalPath {
		t.Errorf("ожидался passthrough, получено %+v", res.Output)
	}
}

// TestResolveAndConvert_ErrorNotLoggedAsConversion — при ошибке запись
// об успешной конвертации не создаётся.
func TestResolveAndConvert_ErrorNotLoggedAsConversion(t *testing.T) {
	env := setupGateway(t)

	_, err := env.gateway.ResolveAndConvert(context.Background(),
		model.NewLocalPath(filepath.Join(t.TempDir(), "nope.docx")), model.FormatPDF)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}

	env.recorder.mu.Lock()
	defer env.recorder.mu.Unlock()
	if len(env.recorder.conversions) != 0 {
		t.Errorf("конвертация не должна попасть в журнал: %+v", env.recorder.conversions)
	}
	if len(env.recorder.errors) != 1 {
		t.Errorf("ошибка должна быть записана один раз, записей: %d", len(env.recorder.errors))
	}
}
