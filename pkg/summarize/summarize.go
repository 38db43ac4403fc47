// Package summarize implements the chunked map-reduce document summarizer
// (C5): load a source (file or URL), normalize and chunk its text, summarize
// each chunk through the chat provider, and combine multi-chunk results into
// a single answer.
package summarize

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/sandbox"
	"github.com/quietloop/workshop/pkg/web"
	"golang.org/x/net/html"
)

const (
	defaultMaxChars = 60000
	chunkSize       = 12000
	// fetchNoCap is passed to web.Client.Fetch for URL sources so its own
	// internal truncation never runs; Summarize's own truncate step, using
	// the request's (or default) maxChars against the full fetched text,
	// is the only place that decides the cut point and the truncated flag.
	fetchNoCap = math.MaxInt32
)

// Style controls the summarization instruction handed to the chat provider.
type Style string

const (
	StyleBrief    Style = "brief"
	StyleDetailed Style = "detailed"
	StyleBullets  Style = "bullets"
)

// Request is the input to Summarize.
type Request struct {
	Source   string
	Style    Style
	Focus    string
	MaxChars int
}

// SourceType records whether the source resolved to a local file or a URL.
type SourceType string

const (
	SourceFile SourceType = "file"
	SourceURL  SourceType = "url"
)

// Response is the summarizer's output. Any failure is reported through
// Error rather than a returned Go error, matching the design's "no
// exception escapes" contract.
type Response struct {
	Source     string     `json:"source"`
	SourceType SourceType `json:"sourceType"`
	Title      string     `json:"title,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Style      Style      `json:"style"`
	Focus      string     `json:"focus,omitempty"`
	Truncated  bool       `json:"truncated"`
	ChunkCount int        `json:"chunkCount"`
	TextChars  int        `json:"textChars"`
	Error      string     `json:"error,omitempty"`
}

var urlPattern = regexp.MustCompile(`(?i)^https?://`)

// Summarizer wires together the collaborators the summarization algorithm
// needs: a chat model, the web client for URL sources, and a sandbox root
// for file sources.
type Summarizer struct {
	Model model.Model
	Web   *web.Client
	Root  string
}

// Summarize runs the five-stage algorithm described in the document
// summarizer's design: load, normalize, chunk, summarize, combine.
func (s *Summarizer) Summarize(ctx context.Context, req Request) Response {
	style := req.Style
	if style == "" {
		style = StyleBrief
	}
	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	resp := Response{Source: req.Source, Style: style, Focus: req.Focus}

	text, sourceType, title, err := s.load(ctx, req.Source)
	if err != nil {
		resp.SourceType = sourceType
		resp.Error = fmt.Sprintf("load failed: %v", err)
		return resp
	}
	resp.SourceType = sourceType
	resp.Title = title

	truncated := false
	if len([]rune(text)) > maxChars {
		text = string([]rune(text)[:maxChars])
		truncated = true
	}
	resp.Truncated = truncated

	text = normalizeWhitespace(text)
	resp.TextChars = len(text)

	chunks := chunkText(text)
	resp.ChunkCount = len(chunks)

	summaries := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		summary, err := s.summarizeChunk(ctx, chunk, style, req.Focus)
		if err != nil {
			resp.Error = fmt.Sprintf("summarize failed: %v", err)
			return resp
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) == 0 {
		resp.Summary = ""
		return resp
	}
	if len(summaries) == 1 {
		resp.Summary = summaries[0]
		return resp
	}

	combined, err := s.combine(ctx, summaries)
	if err != nil {
		resp.Error = fmt.Sprintf("combine failed: %v", err)
		return resp
	}
	resp.Summary = combined
	return resp
}

func (s *Summarizer) load(ctx context.Context, source string) (text string, sourceType SourceType, title string, err error) {
	if urlPattern.MatchString(source) {
		if s.Web == nil {
			return "", SourceURL, "", fmt.Errorf("web client is not configured")
		}
		fetched, err := s.Web.Fetch(ctx, source, fetchNoCap)
		if err != nil {
			return "", SourceURL, "", err
		}
		return fetched.Text, SourceURL, fetched.Title, nil
	}

	resolved, err := sandbox.Resolve(s.Root, source)
	if err != nil {
		return "", SourceFile, "", err
	}
	data, err := os.ReadFile(resolved.Absolute)
	if err != nil {
		return "", SourceFile, "", err
	}

	ext := strings.ToLower(filepath.Ext(resolved.Absolute))
	if ext == ".html" || ext == ".htm" {
		t, extracted := extractReadable(data)
		return extracted, SourceFile, t, nil
	}
	return string(data), SourceFile, "", nil
}

func extractReadable(data []byte) (title, text string) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return "", string(data)
	}
	var sb strings.Builder
	skip := map[string]bool{"script": true, "style": true, "noscript": true}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			if skip[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(title), sb.String()
}

var (
	tabsAndSpaces = regexp.MustCompile(`[ \t]+`)
	manyNewlines  = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = tabsAndSpaces.ReplaceAllString(text, " ")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// chunkText splits text on blank-line boundaries and greedily packs
// paragraphs up to chunkSize characters; any single paragraph longer than
// chunkSize is hard-sliced.
func chunkText(text string) []string {
	if len([]rune(text)) <= chunkSize {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, p := range paragraphs {
		if len([]rune(p)) > chunkSize {
			flush()
			chunks = append(chunks, hardSlice(p)...)
			continue
		}
		candidateLen := current.Len()
		if candidateLen > 0 {
			candidateLen += 2
		}
		candidateLen += len(p)
		if candidateLen > chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}

func hardSlice(p string) []string {
	runes := []rune(p)
	var out []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func styleInstruction(style Style) string {
	switch style {
	case StyleBullets:
		return "Respond with 5-10 concise bullet points."
	case StyleDetailed:
		return "Respond with a few short paragraphs covering the material in more depth."
	default:
		return "Respond with 5-8 sentences."
	}
}

func (s *Summarizer) summarizeChunk(ctx context.Context, chunk string, style Style, focus string) (string, error) {
	system := "You are a precise summarizer. " + styleInstruction(style)
	if focus != "" {
		system += " Focus specifically on: " + focus + "."
	}
	completion, err := s.Model.Chat(ctx, model.ChatRequest{
		Messages: []model.Message{
			model.TextMessage("system", system),
			model.TextMessage("user", chunk),
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return firstText(completion), nil
}

func (s *Summarizer) combine(ctx context.Context, summaries []string) (string, error) {
	system := "You combine chunk summaries into a single coherent summary, preserving the requested style."
	completion, err := s.Model.Chat(ctx, model.ChatRequest{
		Messages: []model.Message{
			model.TextMessage("system", system),
			model.TextMessage("user", strings.Join(summaries, "\n\n---\n\n")),
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return firstText(completion), nil
}

func firstText(c model.Completion) string {
	if len(c.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Choices[0].Message.Text())
}
