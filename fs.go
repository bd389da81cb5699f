package gemini

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/knowfox/geminid/gemtext"
)

// GuessMediaType returns the media type for a file name based on its
// extension: text/gemini for .gmi and .gemini, the system MIME table
// for others and application/octet-stream when nothing is known.
func GuessMediaType(name string) MediaType {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case "":
		return MediaTypeOctetStream
	case ".gmi", ".gemini":
		return MediaTypeGemini
	}
	if mt, err := ParseMediaType(mime.TypeByExtension(ext)); err == nil {
		return mt
	}
	return MediaTypeOctetStream
}

// ServeFile returns a response streaming file. The file is closed when
// the response is closed.
func ServeFile(file *os.File, mt MediaType) *Response {
	return SuccessWithBody(mt, file)
}

// ServeFileName opens name and serves it with a guessed media type.
// A missing file yields "51 Not Found".
func ServeFileName(name string) (*Response, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return NotFoundResponse(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return ServeFile(f, GuessMediaType(name)), nil
}

// FileServer serves the directory tree at root. Mounted on a prefix
// route such as "/files/*" it serves the path below the prefix.
//
// Hidden entries and paths leaving root are reported as not found, a
// directory requested without trailing slash is redirected, and a
// directory is served by its index.gmi or by a generated listing.
func FileServer(root string) Handler {
	return HandlerFunc(func(req *Request) (*Response, error) {
		segs := req.Segments()
		if req.params != nil {
			segs = req.Trailing()
		}
		for _, seg := range segs {
			if strings.HasPrefix(seg, ".") {
				return NotFoundResponse(), nil
			}
		}
		name := filepath.Join(append([]string{root}, segs...)...)
		if !withinRoot(root, name) {
			return NotFoundResponse(), nil
		}
		fi, err := os.Stat(name)
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			return NotFoundResponse(), nil
		case err != nil:
			return nil, err
		case fi.IsDir():
			if !strings.HasSuffix(req.URL.Path, "/") {
				return NewResponse(RedirectPermanentLossy(req.URL.EscapedPath() + "/")), nil
			}
			index := filepath.Join(name, "index.gmi")
			if _, err := os.Stat(index); err == nil {
				return ServeFileName(index)
			}
			return dirListing(root, name, segs)
		case isNotWorldReadable(fi):
			return NewResponse(TemporaryFailureLossy("Unable to access file")), nil
		default:
			return ServeFileName(name)
		}
	})
}

func dirListing(root, dir string, segs []string) (*Response, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	doc := gemtext.NewDocument().
		AddHeading(gemtext.H1, "Index of /"+path.Join(segs...)).
		AddBlankLine()
	if len(segs) > 0 {
		doc.AddLink("..", "📁 ../")
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := filepath.Join(dir, entry.Name())
		fi, err := os.Stat(name)
		if err != nil || !withinRoot(root, name) || (!fi.IsDir() && isNotWorldReadable(fi)) {
			continue
		}
		icon, slash := "📄", ""
		if fi.IsDir() {
			icon, slash = "📁", "/"
		}
		doc.AddLink("./"+url.PathEscape(entry.Name())+slash, icon+" "+entry.Name()+slash)
	}
	return Document(doc), nil
}

// withinRoot resolves symbolic links and reports whether name is root
// or below it.
func withinRoot(root, name string) bool {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	realName, err := filepath.EvalSymlinks(name)
	if err != nil {
		// Let the caller report missing files.
		return errors.Is(err, fs.ErrNotExist)
	}
	rel, err := filepath.Rel(realRoot, realName)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isNotWorldReadable(file os.FileInfo) bool {
	return uint64(file.Mode().Perm())&0444 != 0444
}
