// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package kb

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/hearthware/hearth/lib/retrieval"
)

// articleDomainKey is the BLAKE3 keyed-hash domain for article
// content IDs. A fixed constant — changing it changes every article
// ID. The bytes are the ASCII domain name zero-padded to 32, which
// keeps the key readable in hex dumps without weakening the hash
// (keyed BLAKE3 treats it as an opaque 32-byte value).
var articleDomainKey = [32]byte{
	'h', 'e', 'a', 'r', 't', 'h', '.', 'k', 'b', '.',
	'a', 'r', 't', 'i', 'c', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// KnowledgeBase is the loaded article corpus and denylist.
type KnowledgeBase struct {
	// Articles in manifest order. This order is the score-tiebreak
	// order for retrieval.
	Articles []retrieval.Article

	// Denylist terms for the dialogue input filter. Lowercase.
	Denylist []string
}

// manifest is the parsed manifest.jsonc shape.
type manifest struct {
	// Articles lists article file names relative to the KB
	// directory, in corpus order.
	Articles []string `json:"articles"`

	// Denylist terms rejected before any input parsing.
	Denylist []string `json:"denylist"`
}

// frontMatter is the YAML header of an article file.
type frontMatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Load reads the knowledge base at dir. The directory must contain a
// manifest.jsonc; every file the manifest names must exist and carry
// a front-matter title.
func Load(dir string) (*KnowledgeBase, error) {
	manifestPath := filepath.Join(dir, "manifest.jsonc")
	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("kb: reading manifest: %w", err)
	}

	var parsed manifest
	if err := json.Unmarshal(jsonc.ToJSON(manifestData), &parsed); err != nil {
		return nil, fmt.Errorf("kb: parsing %s: %w", manifestPath, err)
	}

	base := &KnowledgeBase{}

	for _, name := range parsed.Articles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("kb: reading article %s: %w", name, err)
		}

		article, err := parseArticle(data)
		if err != nil {
			return nil, fmt.Errorf("kb: article %s: %w", name, err)
		}
		base.Articles = append(base.Articles, article)
	}

	for _, term := range parsed.Denylist {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			base.Denylist = append(base.Denylist, term)
		}
	}

	return base, nil
}

// LoadDenylist reads a standalone denylist file: a JSONC array of
// terms. Used when the denylist is managed separately from the
// knowledge base.
func LoadDenylist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: reading denylist: %w", err)
	}

	var terms []string
	if err := json.Unmarshal(jsonc.ToJSON(data), &terms); err != nil {
		return nil, fmt.Errorf("kb: parsing denylist %s: %w", path, err)
	}

	normalized := terms[:0]
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			normalized = append(normalized, term)
		}
	}
	return normalized, nil
}

// parseArticle splits front matter from body and assigns the
// content-derived ID.
func parseArticle(data []byte) (retrieval.Article, error) {
	matter, body, err := splitFrontMatter(data)
	if err != nil {
		return retrieval.Article{}, err
	}

	var header frontMatter
	if err := yaml.Unmarshal(matter, &header); err != nil {
		return retrieval.Article{}, fmt.Errorf("parsing front matter: %w", err)
	}
	if header.Title == "" {
		return retrieval.Article{}, fmt.Errorf("front matter has no title")
	}

	return retrieval.Article{
		ID:    ContentID(data),
		Title: header.Title,
		Body:  strings.TrimSpace(string(body)),
		Tags:  header.Tags,
	}, nil
}

// frontMatterDelimiter separates the YAML header from the body.
var frontMatterDelimiter = []byte("---")

// splitFrontMatter returns the YAML header and markdown body of an
// article. The file must start with a "---" line; the header ends at
// the next "---" line.
func splitFrontMatter(data []byte) (matter, body []byte, err error) {
	trimmed := bytes.TrimLeft(data, "\n")
	if !bytes.HasPrefix(trimmed, frontMatterDelimiter) {
		return nil, nil, fmt.Errorf("missing front matter delimiter")
	}

	rest := trimmed[len(frontMatterDelimiter):]
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelimiter...))
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated front matter")
	}

	matter = rest[:end]
	body = rest[end+1+len(frontMatterDelimiter):]
	return matter, body, nil
}

// ContentID computes the article identifier from the raw file bytes:
// "kb-" plus the first 12 hex characters of the domain-keyed BLAKE3
// hash.
func ContentID(data []byte) string {
	hasher, err := blake3.NewKeyed(articleDomainKey[:])
	if err != nil {
		panic("kb: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	sum := hasher.Sum(nil)
	return "kb-" + hex.EncodeToString(sum[:6])
}
