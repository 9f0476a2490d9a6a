package domain

import (
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Metadata keys written by ingestion alongside each vector.
const (
	MetaSourcePath   = "source_path"
	MetaFolder       = "folder"
	MetaChunkIndex   = "chunk_index"
	MetaTotalChunks  = "total_chunks"
	MetaMimeType     = "mime_type"
	MetaModifiedTime = "modified_time"
)

// FolderFilter restricts candidates to chunks whose folder name or path
// matches Pattern. Patterns may be plain names, path prefixes or doublestar
// globs; plain names match case-insensitively.
type FolderFilter struct {
	Pattern string
}

func (f *FolderFilter) IsZero() bool {
	return f == nil || strings.TrimSpace(f.Pattern) == ""
}

// Match reports whether the metadata of a chunk satisfies the filter.
func (f *FolderFilter) Match(meta map[string]string) bool {
	if f.IsZero() {
		return true
	}
	pattern := strings.Trim(strings.TrimSpace(f.Pattern), "/")
	folder := strings.Trim(meta[MetaFolder], "/")
	dir := strings.Trim(path.Dir(meta[MetaSourcePath]), "/")

	if ok, err := doublestar.Match(pattern, folder); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(pattern, meta[MetaSourcePath]); err == nil && ok {
		return true
	}

	lp := strings.ToLower(pattern)
	for _, candidate := range []string{folder, dir} {
		lc := strings.ToLower(candidate)
		if lc == "" {
			continue
		}
		if lc == lp || strings.HasPrefix(lc, lp+"/") || strings.HasSuffix(lc, "/"+lp) {
			return true
		}
		if !hasGlobMeta(lp) && strings.Contains(lc, lp) {
			return true
		}
	}
	return false
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// ChunkFromMetadata rebuilds a chunk from the flat metadata stored with its vector.
func ChunkFromMetadata(id, text string, meta map[string]string) Chunk {
	c := Chunk{
		ID:         id,
		Text:       text,
		SourcePath: meta[MetaSourcePath],
		Folder:     meta[MetaFolder],
		MimeType:   meta[MetaMimeType],
	}
	c.ChunkIndex, _ = strconv.Atoi(meta[MetaChunkIndex])
	c.TotalChunks, _ = strconv.Atoi(meta[MetaTotalChunks])
	if ts := meta[MetaModifiedTime]; ts != "" {
		c.ModifiedTime, _ = time.Parse(time.RFC3339, ts)
	}
	if c.Folder == "" && c.SourcePath != "" {
		if dir := path.Dir(c.SourcePath); dir != "." && dir != "/" {
			c.Folder = path.Base(dir)
		}
	}
	return c
}

// Metadata flattens the chunk provenance for storage next to its vector.
func (c Chunk) Metadata() map[string]string {
	meta := map[string]string{
		MetaSourcePath:  c.SourcePath,
		MetaFolder:      c.Folder,
		MetaChunkIndex:  strconv.Itoa(c.ChunkIndex),
		MetaTotalChunks: strconv.Itoa(c.TotalChunks),
	}
	if c.MimeType != "" {
		meta[MetaMimeType] = c.MimeType
	}
	if !c.ModifiedTime.IsZero() {
		meta[MetaModifiedTime] = c.ModifiedTime.UTC().Format(time.RFC3339)
	}
	return meta
}
