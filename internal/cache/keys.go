package cache

import (
	"path"
	"path/filepath"
	"strings"
)

// Fixed keys of global aggregate caches.
const (
	KeyDocumentsList  = "wiki:documents:list"
	KeyRecentModified = "wiki:recent:modified"
	KeyRecentActivity = "wiki:recent:activity"
	KeySpacesList     = "wiki:spaces:list"

	// SearchPattern matches every cached search-result bucket.
	SearchPattern = "wiki:search:*"
	searchPrefix  = "wiki:search:"
)

// ContentKey is the content cache key of one item: "<spaceName>-<relativePath>".
func ContentKey(spaceName, rel string) string {
	return spaceName + "-" + filepath.ToSlash(rel)
}

// FolderKey is the directory-listing key for dir inside a space; the space
// root uses an empty dir.
func FolderKey(spaceIDOrName, dir string) string {
	return "wiki:folder:" + spaceIDOrName + ":" + cleanDir(dir)
}

// SpaceDocumentsKey is the per-space document cache key.
func SpaceDocumentsKey(spaceIDOrName string) string {
	return "wiki:space:" + spaceIDOrName + ":documents"
}

// SearchKey is the cache key of one search-result bucket.
func SearchKey(bucket string) string { return searchPrefix + bucket }

// Ancestors returns every ancestor directory of rel, nearest first, ending
// with the space root (""). "folder/sub/doc.md" yields
// ["folder/sub", "folder", ""].
func Ancestors(rel string) []string {
	p := cleanDir(rel)
	var out []string
	for p != "" {
		p = path.Dir(p)
		if p == "." || p == "/" {
			p = ""
		}
		out = append(out, p)
	}
	return out
}

func cleanDir(dir string) string {
	d := path.Clean(filepath.ToSlash(dir))
	d = strings.Trim(d, "/")
	if d == "." {
		return ""
	}
	return d
}
