package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/stats"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConverter — внешний конвертер, пишущий заглушку в workDir.
type fakeConverter struct {
	calls atomic.Int32
	err   error
	delay time.Duration
	// aux — дополнительно создать вспомогательный файл
	aux bool
}

func (f *fakeConverter) Convert(_ context.Context, input string, format model.OutputFormat, workDir string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(workDir, base+"."+string(format))
	if err := os.WriteFile(out, []byte("converted by fake"), 0o640); err != nil {
		return "", err
	}
	if f.aux {
		os.WriteFile(filepath.Join(workDir, base+"_html_1.png"), []byte("png"), 0o640)
	}
	return out, nil
}

// errorRecorder — UsageRecorder, запоминающий ошибки.
type errorRecorder struct {
	stats.NopRecorder
	mu     sync.Mutex
	errors []string
}

func (r *errorRecorder) LogError(_ context.Context, _, _, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
	return nil
}

func (r *errorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// setupEngine создаёт движок с директориями кэша и результатов.
func setupEngine(t *testing.T, conv Converter) (*Engine, string, *errorRecorder) {
	t.Helper()
	cacheDir := t.TempDir()
	out, err := filestore.New(filepath.Join(t.TempDir(), "converted"))
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	rec := &errorRecorder{}
	eng := NewEngine(out, conv, rec, EngineConfig{RenderWorkers: 2, SourceURLPrefix: "/aview/cache"}, testLogger())
	return eng, cacheDir, rec
}

// cacheFile создаёт слот кэша и запись для него.
func cacheFile(t *testing.T, dir, fp, ext string, content []byte) *model.CacheEntry {
	t.Helper()
	path := filepath.Join(dir, fp+ext)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		t.Fatalf("ошибка записи слота: %v", err)
	}
	return &model.CacheEntry{
		Fingerprint:      fp,
		LocalPath:        path,
		OriginalFilename: "source" + ext,
		Extension:        ext,
		SizeBytes:        int64(len(content)),
		CreatedAt:        time.Now().UTC(),
		SourceValue:      "https://example.com/source" + ext,
	}
}

// countingRenderer оборачивает рендер и считает вызовы.
func countingRenderer(inner Renderer, n *atomic.Int32) Renderer {
	return RendererFunc(func(ctx context.Context, in RenderInput, w io.Writer) error {
		n.Add(1)
		return inner.Render(ctx, in, w)
	})
}

func TestConvert_Passthrough(t *testing.T) {
	conv := &fakeConverter{}
	eng, cacheDir, _ := setupEngine(t, conv)

	entry := cacheFile(t, cacheDir, "pdfsrc", ".pdf", []byte("%PDF-1.4"))
	out, err := eng.Convert(context.Background(), entry, model.FormatPDF)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !out.Passthrough || out.OutputPath != entry.LocalPath {
		t.Errorf("ожидался passthrough на %s, получено %+v", entry.LocalPath, out)
	}
	if conv.calls.Load() != 0 {
		t.Error("конвертер не должен вызываться для passthrough")
	}
	files, _ := os.ReadDir(eng.OutputDir())
	if len(files) != 0 {
		t.Errorf("в директории результатов не должно быть файлов, найдено %d", len(files))
	}
}

func TestConvert_CSVRenderAndMemo(t *testing.T) {
	conv := &fakeConverter{}
	eng, cacheDir, _ := setupEngine(t, conv)

	var renders atomic.Int32
	eng.RegisterRenderer(model.KindCSV, countingRenderer(RendererFunc(renderCSV), &renders))

	entry := cacheFile(t, cacheDir, "csvfp", ".csv", []byte("name,age\nKim,30\nLee,25\n"))

	first, err := eng.Convert(context.Background(), entry, model.FormatHTML)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	want := filepath.Join(eng.OutputDir(), "csvfp.html")
	if first.OutputPath != want {
		t.Errorf("путь: ожидалось %s, получено %s", want, first.OutputPath)
	}
	if first.Reused {
		t.Error("первый вызов не должен быть повторным использованием")
	}

	html, err := os.ReadFile(first.OutputPath)
	if err != nil {
		t.Fatalf("результат не найден: %v", err)
	}
	for _, s := range []string{"<th>name</th>", "<td>Kim</td>", "строк: 2", "столбцов: 2"} {
		if !strings.Contains(string(html), s) {
			t.Errorf("в HTML нет %q", s)
		}
	}

	second, err := eng.Convert(context.Background(), entry, model.FormatHTML)
	if err != nil {
		t.Fatalf("повторная конвертация: %v", err)
	}
	if !second.Reused || second.OutputPath != want {
		t.Errorf("ожидалось повторное использование %s, получено %+v", want, second)
	}
	if renders.Load() != 1 {
		t.Errorf("рендер должен вызываться один раз, вызван %d", renders.Load())
	}
	if conv.calls.Load() != 0 {
		t.Error("внешний конвертер не должен вызываться для CSV")
	}
}

func TestConvert_OfficeUsesConverter(t *testing.T) {
	conv := &fakeConverter{aux: true}
	eng, cacheDir, _ := setupEngine(t, conv)

	entry := cacheFile(t, cacheDir, "docfp", ".docx", []byte("PK fake docx"))

	for _, format := range []model.OutputFormat{model.FormatPDF, model.FormatHTML} {
		out, err := eng.Convert(context.Background(), entry, format)
		if err != nil {
			t.Fatalf("%s: неожиданная ошибка: %v", format, err)
		}
		if filepath.Base(out.OutputPath) != "docfp."+string(format) {
			t.Errorf("%s: неожиданный путь %s", format, out.OutputPath)
		}
	}
	if conv.calls.Load() != 2 {
		t.Errorf("ожидалось 2 вызова конвертера, получено %d", conv.calls.Load())
	}

	// Вспомогательные файлы опубликованы, рабочие директории удалены
	if _, err := os.Stat(filepath.Join(eng.OutputDir(), "docfp_html_1.png")); err != nil {
		t.Errorf("вспомогательный файл не опубликован: %v", err)
	}
	files, _ := os.ReadDir(eng.OutputDir())
	for _, f := range files {
		if f.IsDir() || filestore.IsTempFile(f.Name()) {
			t.Errorf("после конвертации остался мусор: %s", f.Name())
		}
	}
}

func TestConvert_NoConverterConfigured(t *testing.T) {
	eng, cacheDir, rec := setupEngine(t, nil)

	entry := cacheFile(t, cacheDir, "nodocfp", ".docx", []byte("PK fake docx"))
	_, err := eng.Convert(context.Background(), entry, model.FormatPDF)
	if !errors.Is(err, apperr.ErrConverterUnavailable) {
		t.Fatalf("ожидалась ErrConverterUnavailable, получено %v", err)
	}
	if kind := apperr.Kind(err); kind != apperr.CodeConverterUnavailable {
		t.Errorf("код ошибки: получено %s, ожидалось %s", kind, apperr.CodeConverterUnavailable)
	}
	if rec.count() != 1 {
		t.Errorf("ошибка должна попасть в журнал, записей: %d", rec.count())
	}
}

func TestConvert_PDFFormatForText(t *testing.T) {
	conv := &fakeConverter{}
	eng, cacheDir, _ := setupEngine(t, conv)

	entry := cacheFile(t, cacheDir, "txtfp", ".txt", []byte("plain"))
	if _, err := eng.Convert(context.Background(), entry, model.FormatPDF); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if conv.calls.Load() != 1 {
		t.Errorf("PDF из текста строится внешним конвертером, вызовов %d", conv.calls.Load())
	}
}

func TestConvert_FallbackOnRenderFailure(t *testing.T) {
	conv := &fakeConverter{}
	eng, cacheDir, _ := setupEngine(t, conv)

	// Байты, не подходящие ни под одну кодировку
	entry := cacheFile(t, cacheDir, "badtxt", ".txt", []byte{0xFF, 0xFF, 0xFF})

	out, err := eng.Convert(context.Background(), entry, model.FormatHTML)
	if err != nil {
		t.Fatalf("ожидался успешный fallback, получено %v", err)
	}
	if conv.calls.Load() != 1 {
		t.Errorf("ожидался 1 вызов конвертера, получено %d", conv.calls.Load())
	}
	data, _ := os.ReadFile(out.OutputPath)
	if string(data) != "converted by fake" {
		t.Errorf("ожидался результат внешнего конвертера, получено %q", data)
	}
}

func TestConvert_FallbackFailureJoinsErrors(t *testing.T) {
	conv := &fakeConverter{err: fmt.Errorf("%w: exit 1", apperr.ErrConversionFailed)}
	eng, cacheDir, rec := setupEngine(t, conv)

	entry := cacheFile(t, cacheDir, "badmd", ".md", []byte{0xFF, 0xFE, 0xFF})

	_, err := eng.Convert(context.Background(), entry, model.FormatHTML)
	if !errors.Is(err, apperr.ErrEncoding) || !errors.Is(err, apperr.ErrConversionFailed) {
		t.Fatalf("ошибка должна содержать обе причины, получено %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("ошибка должна попасть в журнал, записей %d", rec.count())
	}
	if _, ok := eng.out.Stat("badmd.html"); ok {
		t.Error("результат не должен существовать после ошибки")
	}
}

func TestConvert_ImageNoFallback(t *testing.T) {
	conv := &fakeConverter{}
	eng, cacheDir, _ := setupEngine(t, conv)

	entry := cacheFile(t, cacheDir, "img", ".png", []byte("not really png"))
	// Удаляем слот: рендер не сможет открыть файл
	os.Remove(entry.LocalPath)

	if _, err := eng.Convert(context.Background(), entry, model.FormatHTML); err == nil {
		t.Fatal("ожидалась ошибка рендера изображения")
	}
	if conv.calls.Load() != 0 {
		t.Error("для изображений внешний конвертер не используется")
	}
}

func TestConvert_ImagePageUnknownMetadata(t *testing.T) {
	eng, cacheDir, _ := setupEngine(t, &fakeConverter{})

	entry := cacheFile(t, cacheDir, "imgfp", ".jpg", []byte("not an image"))
	out, err := eng.Convert(context.Background(), entry, model.FormatHTML)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	html, _ := os.ReadFile(out.OutputPath)
	if !strings.Contains(string(html), "Unknown") {
		t.Error("недоступные свойства должны отображаться как Unknown")
	}
	if !strings.Contains(string(html), `src="/aview/cache/imgfp.jpg"`) {
		t.Errorf("страница должна ссылаться на исходник:\n%s", html)
	}
}

func TestConvert_ConcurrentRequestsShareWork(t *testing.T) {
	conv := &fakeConverter{delay: 100 * time.Millisecond}
	eng, cacheDir, _ := setupEngine(t, conv)

	entry := cacheFile(t, cacheDir, "shared", ".pptx", []byte("pptx"))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := eng.Convert(context.Background(), entry, model.FormatPDF)
			if err != nil {
				errs <- err
				return
			}
			if filepath.Base(out.OutputPath) != "shared.pdf" {
				errs <- fmt.Errorf("неожиданный путь %s", out.OutputPath)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if conv.calls.Load() != 1 {
		t.Errorf("одновременные запросы должны разделять одну конвертацию, вызовов %d", conv.calls.Load())
	}
}

func TestConvert_UnsupportedExtension(t *testing.T) {
	eng, cacheDir, _ := setupEngine(t, &fakeConverter{})

	entry := cacheFile(t, cacheDir, "exe", ".exe", []byte("MZ"))
	_, err := eng.Convert(context.Background(), entry, model.FormatHTML)
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Errorf("ожидалась ErrUnsupportedFormat, получено %v", err)
	}
}
