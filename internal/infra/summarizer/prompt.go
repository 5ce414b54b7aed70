package summarizer

import (
	"fmt"
	"strings"

	"compintel/internal/domain/entity"
	"compintel/internal/usecase/process"
)

// maxArticleChars truncates each article body before it enters the
// prompt, keeping batch prompts within provider token limits.
const maxArticleChars = 4000

// BuildBatchPrompt renders one prompt covering the whole batch. Each
// article is numbered so the response can be matched back; the model is
// asked for a fixed "[n] summary / Category: x" shape per item.
func BuildBatchPrompt(articles []*entity.Article) string {
	var b strings.Builder
	b.WriteString("You are a competitive intelligence analyst. Summarize each numbered article below in 2-3 sentences, focusing on what the competitor did and why it matters.\n")
	b.WriteString("For every article respond with exactly this format:\n")
	b.WriteString("[n] <summary>\nCategory: <one of: ")
	cats := entity.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(">\n\n")

	for i, article := range articles {
		content := article.Content
		if len(content) > maxArticleChars {
			content = content[:maxArticleChars] + "..."
		}
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n%s\n\n",
			i+1, article.Title, article.Competitor,
			article.PublishedAt.Format("2006-01-02"), content)
	}
	return b.String()
}

// ParseBatchResponse maps the model's reply back onto the batch. Items
// the model skipped or garbled are simply absent from the result; the
// caller treats those as per-item fallbacks.
func ParseBatchResponse(response string, articles []*entity.Article) map[int64]process.ItemSummary {
	results := make(map[int64]process.ItemSummary, len(articles))

	current := -1 // batch index of the item being accumulated
	var text strings.Builder
	var category entity.Category

	flush := func() {
		if current < 0 || current >= len(articles) {
			return
		}
		summary := strings.TrimSpace(text.String())
		if summary == "" {
			return
		}
		results[articles[current].ID] = process.ItemSummary{Text: summary, Category: category}
	}

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)

		if idx, rest, ok := parseItemHeader(line); ok {
			flush()
			current = idx - 1
			text.Reset()
			category = ""
			text.WriteString(rest)
			continue
		}
		if current < 0 {
			continue
		}
		if c, ok := strings.CutPrefix(line, "Category:"); ok {
			category = entity.ParseCategory(c)
			continue
		}
		if line != "" {
			if text.Len() > 0 {
				text.WriteString(" ")
			}
			text.WriteString(line)
		}
	}
	flush()
	return results
}

// parseItemHeader matches lines shaped like "[3] summary text...".
func parseItemHeader(line string) (int, string, bool) {
	if !strings.HasPrefix(line, "[") {
		return 0, "", false
	}
	end := strings.IndexByte(line, ']')
	if end < 2 {
		return 0, "", false
	}
	n := 0
	for _, r := range line[1:end] {
		if r < '0' || r > '9' {
			return 0, "", false
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, "", false
	}
	return n, strings.TrimSpace(line[end+1:]), true
}
