package transform

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// CachebustOptions configures asset fingerprinting in HTML.
type CachebustOptions struct {
	// ReadAsset returns the content of an asset by its slash-separated path
	// relative to the output root. fs.ErrNotExist leaves the reference as is.
	ReadAsset func(name string) ([]byte, error)

	// HashLength is the number of hex digits kept. Defaults to 10.
	HashLength int
}

// Cachebust appends "?v=<hash>" to local href/src references in HTML files.
//
// An existing v parameter is replaced, so running the stage again over its
// own output changes nothing unless an asset changed.
type Cachebust struct {
	Options CachebustOptions
}

func NewCachebust(opts CachebustOptions) *Cachebust {
	if opts.HashLength <= 0 || opts.HashLength > sha256.Size*2 {
		opts.HashLength = 10
	}
	return &Cachebust{Options: opts}
}

func (c *Cachebust) Stage() string { return StageCachebust }

func (c *Cachebust) Apply(ctx context.Context, in []File) ([]File, error) {
	if c.Options.ReadAsset == nil {
		return nil, failf(StageCachebust, "no asset reader configured")
	}
	hashes := map[string]string{}
	out := make([]File, 0, len(in))
	for _, f := range in {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := c.rewritePage(f, hashes)
		if err != nil {
			return nil, &TransformError{Stage: StageCachebust, Message: f.Path + ": " + err.Error(), Err: err}
		}
		out = append(out, File{Path: f.Path, Data: data})
	}
	return out, nil
}

// rewritePage copies the page token by token. Only the href and src
// attribute values of tags change; text, comments and script bodies are
// written back as read.
func (c *Cachebust) rewritePage(f File, hashes map[string]string) ([]byte, error) {
	dir := path.Dir(f.Path)
	value := func(raw string) (string, error) {
		ref := html.UnescapeString(raw)
		busted, err := c.bust(dir, ref, hashes)
		if err != nil || busted == ref {
			return raw, err
		}
		if strings.Contains(raw, "&amp;") {
			busted = strings.ReplaceAll(busted, "&", "&amp;")
		}
		return busted, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(f.Data) + 64)
	z := html.NewTokenizer(bytes.NewReader(f.Data))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			return buf.Bytes(), nil
		}
		raw := z.Raw()
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			tag, err := rewriteTag(raw, value)
			if err != nil {
				return nil, err
			}
			raw = tag
		}
		buf.Write(raw)
	}
}

// rewriteTag passes the raw href and src values of one start tag through fn.
// Quoting and the bytes around the values are kept.
func rewriteTag(raw []byte, fn func(string) (string, error)) ([]byte, error) {
	var out []byte
	last := 0

	i := 1
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '>' && raw[i] != '/' {
		i++
	}
	for i < len(raw) {
		for i < len(raw) && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}
		nameStart := i
		for i < len(raw) && !isSpace(raw[i]) && raw[i] != '=' && raw[i] != '>' && raw[i] != '/' {
			i++
		}
		if i == nameStart {
			i++
			continue
		}
		name := strings.ToLower(string(raw[nameStart:i]))

		j := i
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		if j >= len(raw) || raw[j] != '=' {
			continue
		}
		j++
		for j < len(raw) && isSpace(raw[j]) {
			j++
		}
		var vs, ve int
		if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
			q := raw[j]
			vs, ve = j+1, j+1
			for ve < len(raw) && raw[ve] != q {
				ve++
			}
			i = ve + 1
		} else {
			vs, ve = j, j
			for ve < len(raw) && !isSpace(raw[ve]) && raw[ve] != '>' {
				ve++
			}
			i = ve
		}

		if name != "href" && name != "src" {
			continue
		}
		old := string(raw[vs:ve])
		val, err := fn(old)
		if err != nil {
			return nil, err
		}
		if val == old {
			continue
		}
		out = append(out, raw[last:vs]...)
		out = append(out, val...)
		last = ve
	}
	if out == nil {
		return raw, nil
	}
	return append(out, raw[last:]...), nil
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// bust returns ref with its v parameter set to the asset hash, or ref itself
// when it is not a local asset.
func (c *Cachebust) bust(dir, ref string, hashes map[string]string) (string, error) {
	if !isLocalRef(ref) {
		return ref, nil
	}

	rest, fragment, _ := strings.Cut(ref, "#")
	target, query, _ := strings.Cut(rest, "?")
	if target == "" {
		return ref, nil
	}
	switch strings.ToLower(path.Ext(target)) {
	case "", ".html", ".htm":
		return ref, nil
	}

	var name string
	if strings.HasPrefix(target, "/") {
		name = path.Clean(target)[1:]
	} else {
		name = path.Clean(path.Join(dir, target))
	}
	if name == "" || name == ".." || strings.HasPrefix(name, "../") {
		return ref, nil
	}

	sum, ok := hashes[name]
	if !ok {
		data, err := c.Options.ReadAsset(name)
		if errors.Is(err, fs.ErrNotExist) {
			return ref, nil
		}
		if err != nil {
			return "", err
		}
		h := sha256.Sum256(data)
		sum = hex.EncodeToString(h[:])[:c.Options.HashLength]
		hashes[name] = sum
	}

	params := make([]string, 0, 2)
	if query != "" {
		for _, p := range strings.Split(query, "&") {
			if p == "" || p == "v" || strings.HasPrefix(p, "v=") {
				continue
			}
			params = append(params, p)
		}
	}
	params = append(params, "v="+sum)

	busted := target + "?" + strings.Join(params, "&")
	if fragment != "" {
		busted += "#" + fragment
	}
	return busted, nil
}

func isLocalRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}
	if i := strings.IndexAny(ref, ":/?#"); i > 0 && ref[i] == ':' {
		return false // scheme: http:, data:, mailto: ...
	}
	return true
}
