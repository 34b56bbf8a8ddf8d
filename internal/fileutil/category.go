package fileutil

import (
	"mime"
	"path/filepath"
	"strings"
)

// Category is the coarse content class of a file.
type Category string

const (
	CategoryMarkdown Category = "markdown"
	CategoryText     Category = "text"
	CategoryData     Category = "data"
	CategoryPDF      Category = "pdf"
	CategoryImage    Category = "image"
	CategoryOffice   Category = "office"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryOther    Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryMarkdown, CategoryText, CategoryData, CategoryPDF, CategoryImage,
	CategoryOffice, CategoryVideo, CategoryAudio, CategoryOther,
}

var extCategory = map[string]Category{
	".md":       CategoryMarkdown,
	".markdown": CategoryMarkdown,
	".mdown":    CategoryMarkdown,
	".mdx":      CategoryMarkdown,
	".txt":      CategoryText,
	".text":     CategoryText,
	".log":      CategoryText,
	".rst":      CategoryText,
	".adoc":     CategoryText,
	".ini":      CategoryText,
	".cfg":      CategoryText,
	".conf":     CategoryText,
	".json":     CategoryData,
	".yaml":     CategoryData,
	".yml":      CategoryData,
	".toml":     CategoryData,
	".xml":      CategoryData,
	".csv":      CategoryData,
	".tsv":      CategoryData,
	".pdf":      CategoryPDF,
	".png":      CategoryImage,
	".jpg":      CategoryImage,
	".jpeg":     CategoryImage,
	".gif":      CategoryImage,
	".svg":      CategoryImage,
	".webp":     CategoryImage,
	".bmp":      CategoryImage,
	".ico":      CategoryImage,
	".doc":      CategoryOffice,
	".docx":     CategoryOffice,
	".xls":      CategoryOffice,
	".xlsx":     CategoryOffice,
	".ppt":      CategoryOffice,
	".pptx":     CategoryOffice,
	".odt":      CategoryOffice,
	".ods":      CategoryOffice,
	".odp":      CategoryOffice,
	".mp4":      CategoryVideo,
	".mov":      CategoryVideo,
	".avi":      CategoryVideo,
	".mkv":      CategoryVideo,
	".webm":     CategoryVideo,
	".mp3":      CategoryAudio,
	".wav":      CategoryAudio,
	".ogg":      CategoryAudio,
	".flac":     CategoryAudio,
	".m4a":      CategoryAudio,
}

// DetectCategory maps a file path to its Category. The extension table wins;
// otherwise the registered MIME type decides.
func DetectCategory(path string) Category {
	ext := strings.ToLower(filepath.Ext(path))
	if c, ok := extCategory[ext]; ok {
		return c
	}
	if ext == "" {
		return CategoryOther
	}
	mt := mime.TypeByExtension(ext)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	switch {
	case mt == "":
		return CategoryOther
	case mt == "text/markdown":
		return CategoryMarkdown
	case mt == "application/pdf":
		return CategoryPDF
	case mt == "application/json", mt == "application/xml", strings.HasSuffix(mt, "+json"), strings.HasSuffix(mt, "+xml"):
		return CategoryData
	case strings.HasPrefix(mt, "text/"):
		return CategoryText
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio
	case strings.Contains(mt, "officedocument"), strings.Contains(mt, "opendocument"), strings.Contains(mt, "msword"), strings.Contains(mt, "ms-excel"), strings.Contains(mt, "ms-powerpoint"):
		return CategoryOffice
	}
	return CategoryOther
}

// IsTextLike reports whether files of category c have indexable text content.
func (c Category) IsTextLike() bool {
	switch c {
	case CategoryMarkdown, CategoryText, CategoryData:
		return true
	}
	return false
}

// ParseCategory returns the Category named s (case-insensitive).
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
