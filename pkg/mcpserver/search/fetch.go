package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	maxResponseSize  = 5 * 1024 * 1024
	defaultMaxLength = 20000
)

var fetchPageTool = mcp.NewTool("fetch_page",
	mcp.WithDescription("Fetches a web page and returns its content as markdown"),
	mcp.WithString("url",
		mcp.Required(),
		mcp.Description("Fully-formed http(s) URL"),
	),
	mcp.WithString("format",
		mcp.Description("markdown (default) or text"),
		mcp.Enum("markdown", "text"),
	),
	mcp.WithNumber("max_length",
		mcp.Description("Truncate the output to this many characters"),
	),
)

func (t *tools) fetchPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url argument is required"), nil
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return mcp.NewToolResultError("url must start with http:// or https://"), nil
	}
	format := request.GetString("format", "markdown")
	maxLength := request.GetInt("max_length", defaultMaxLength)

	content, contentType, err := t.get(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	output := content
	if strings.Contains(contentType, "text/html") {
		if format == "text" {
			output, err = extractText(content)
		} else {
			output, err = convertHTMLToMarkdown(content)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("convert page: %v", err)), nil
		}
	}

	if maxLength > 0 && len(output) > maxLength {
		output = output[:maxLength] + "\n\n[truncated]"
	}
	return mcp.NewToolResultText(output), nil
}

func (t *tools) get(ctx context.Context, target string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return "", "", fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseSize {
		return "", "", fmt.Errorf("response too large (exceeds 5MB limit)")
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, object, embed").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
	})
	converter.Remove("script", "style", "meta", "link", "nav", "footer")
	return converter.ConvertString(html)
}
