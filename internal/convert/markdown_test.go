package convert

import (
	"strings"
	"testing"
)

func TestMarkdownToHTML(t *testing.T) {
	src := "# Заголовок\n\nТекст ~~старый~~\n\n## Таблица\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n- [x] сделано\n\n<script>alert(1)</script>\n"

	body, toc, err := MarkdownToHTML([]byte(src))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	for _, want := range []string{"<table>", "<del>старый</del>", `type="checkbox"`, "<h2 id="} {
		if !strings.Contains(body, want) {
			t.Errorf("в HTML нет %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("сырой HTML не должен попадать в результат")
	}

	if len(toc) != 2 {
		t.Fatalf("оглавление: ожидалось 2 пункта, получено %d", len(toc))
	}
	if toc[0].Text != "Заголовок" || toc[0].Indent != 0 {
		t.Errorf("первый пункт: %+v", toc[0])
	}
	if toc[1].Text != "Таблица" || toc[1].Indent != 1 || toc[1].ID == "" {
		t.Errorf("второй пункт: %+v", toc[1])
	}
}
