package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gallery-go/internal/gallery"
	"gallery-go/internal/quality"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func printSuccess(format string, args ...any) {
	_, _ = successColor.Printf("✓ "+format+"\n", args...)
}

func printWarning(format string, args ...any) {
	_, _ = warningColor.Printf("⚠ "+format+"\n", args...)
}

func printError(format string, args ...any) {
	_, _ = errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printHeader(title string) {
	_, _ = headerColor.Printf("▸ %s\n", title)
}

func printLabelValue(label string, value any) {
	_, _ = labelColor.Printf("  %-14s ", label+":")
	fmt.Println(value)
}

// formatScore renders a quality score, coloured red below the low quality
// threshold.
func formatScore(score *float64) string {
	if score == nil {
		return dimColor.Sprint("  -")
	}
	s := fmt.Sprintf("%3.0f", *score)
	if *score < quality.DefaultWeights.LowQualityThreshold {
		return errorColor.Sprint(s)
	}
	return successColor.Sprint(s)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(ts gallery.Timestamp) string {
	if ts == 0 {
		return "-"
	}
	return ts.Time().Local().Format("2006-01-02 15:04")
}

func printImageLine(rec *gallery.ImageRecord) {
	fav := " "
	if rec.Favorite {
		fav = warningColor.Sprint("★")
	}
	fmt.Printf("%s %s  %s  %s  %-6s %s\n",
		fav,
		formatScore(rec.QualityScore),
		dimColor.Sprint(rec.ID),
		formatTime(rec.CreatedAt),
		rec.AspectRatio,
		rec.Filename,
	)
}

func printImage(rec *gallery.ImageRecord) {
	printHeader(rec.Filename)
	printLabelValue("ID", rec.ID)
	printLabelValue("Created", formatTime(rec.CreatedAt))
	printLabelValue("Model", rec.Model)
	printLabelValue("Aspect ratio", rec.AspectRatio)
	if rec.Width != nil && rec.Height != nil {
		printLabelValue("Size", fmt.Sprintf("%dx%d, %s", *rec.Width, *rec.Height, formatSize(rec.FileSize)))
	} else {
		printLabelValue("Size", formatSize(rec.FileSize))
	}
	printLabelValue("Favorite", rec.Favorite)
	printLabelValue("Tags", strings.Join(rec.Tags, ", "))
	printLabelValue("Quality", strings.TrimSpace(formatScore(rec.QualityScore)))
	if len(rec.QualityIssues) > 0 {
		printLabelValue("Issues", strings.Join(rec.QualityIssues, ", "))
	}
	printLabelValue("Prompt", rec.Prompt)
}

func printPromptLine(p *gallery.PromptRecord) {
	fav := " "
	if p.Favorite {
		fav = warningColor.Sprint("★")
	}
	category := p.Category
	if category == "" {
		category = gallery.DefaultCategory
	}
	fmt.Printf("%s %s  %-12s %3d×  %s\n", fav, dimColor.Sprint(p.ID), category, p.UseCount, p.Title)
}
