package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1ureka/beam/internal/crypto"
	"github.com/1ureka/beam/internal/protocol"
)

func TestBuildLink(t *testing.T) {
	testCases := []struct {
		base string
		want string
	}{
		{"https://beam.test", "https://beam.test/d/a1b2c3d4#tok"},
		{"https://beam.test/", "https://beam.test/d/a1b2c3d4#tok"},
		{"http://localhost:3000", "http://localhost:3000/d/a1b2c3d4#tok"},
	}
	for _, tc := range testCases {
		if got := BuildLink(tc.base, "a1b2c3d4", "tok"); got != tc.want {
			t.Errorf("BuildLink(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestParseLink(t *testing.T) {
	testCases := []struct {
		name  string
		link  string
		room  string
		token string
		bad   bool
	}{
		{name: "full link", link: "https://beam.test/d/a1b2c3d4#abc", room: "a1b2c3d4", token: "abc"},
		{name: "trailing slash", link: "https://beam.test/d/a1b2c3d4/#abc", room: "a1b2c3d4", token: "abc"},
		{name: "nested base path", link: "https://x.test/app/d/room_1#p_salt", room: "room_1", token: "p_salt"},
		{name: "bare id and token", link: "a1b2c3d4#abc", room: "a1b2c3d4", token: "abc"},
		{name: "surrounding whitespace", link: "  a1b2c3d4#abc\n", room: "a1b2c3d4", token: "abc"},
		{name: "no fragment", link: "https://beam.test/d/a1b2c3d4", bad: true},
		{name: "empty fragment", link: "https://beam.test/d/a1b2c3d4#", bad: true},
		{name: "no room", link: "https://beam.test/d/#abc", bad: true},
		{name: "invalid room", link: "bad room#abc", bad: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			room, token, err := ParseLink(tc.link)
			if tc.bad {
				if !errors.Is(err, ErrBadLink) {
					t.Errorf("got %v, want ErrBadLink", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLink failed: %v", err)
			}
			if room != tc.room || token != tc.token {
				t.Errorf("got (%q, %q), want (%q, %q)", room, token, tc.room, tc.token)
			}
		})
	}
}

func TestLinkRoundTripWithRealToken(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	link := BuildLink("https://beam.test", "a1b2c3d4", crypto.ExportKey(key))

	_, token, err := ParseLink(link)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := crypto.ParseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed.Key) != string(key) {
		t.Error("key did not survive the link")
	}
}

func TestStateNames(t *testing.T) {
	for s := StateIdle; s <= StateError; s++ {
		name := s.String()
		if name == "" || name == "unknown" || strings.ToLower(name) != name {
			t.Errorf("state %d has name %q", s, name)
		}
	}
	if StateWaitingForPeer.String() != "waiting-for-peer" {
		t.Errorf("got %q", StateWaitingForPeer.String())
	}
}

func TestErrorFormatting(t *testing.T) {
	integrity := newError(KindIntegrity, crypto.ErrIntegrity.Error(), crypto.ErrIntegrity)
	if integrity.Error() != "wrong password or corrupted data" {
		t.Errorf("got %q", integrity.Error())
	}

	wrapped := fmt.Errorf("outer: %w", newError(KindTransport, "transfer failed", errors.New("boom")))
	if KindOf(wrapped) != KindTransport {
		t.Errorf("KindOf = %s", KindOf(wrapped))
	}
	if !strings.Contains(wrapped.Error(), "transfer failed: boom") {
		t.Errorf("got %q", wrapped.Error())
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain errors have no kind")
	}
}

func TestSafeName(t *testing.T) {
	testCases := map[string]string{
		"report.pdf":       "report.pdf",
		"../../etc/passwd": "passwd",
		`C:\Users\x\a.txt`: "a.txt",
		"":                 "download",
		"..":               "download",
		"dir/":             "dir",
	}
	for in, want := range testCases {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveFileDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()

	first, err := SaveFile(dir, File{Name: "a.txt", Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	second, err := SaveFile(dir, File{Name: "a.txt", Data: []byte("two")})
	if err != nil {
		t.Fatal(err)
	}

	if first != filepath.Join(dir, "a.txt") || second != filepath.Join(dir, "a (1).txt") {
		t.Errorf("paths %q, %q", first, second)
	}
	if b, _ := os.ReadFile(first); string(b) != "one" {
		t.Error("first file overwritten")
	}
}

func TestFileSinkWrongKey(t *testing.T) {
	dir := t.TempDir()
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	ct, _ := crypto.Encrypt([]byte("payload"), key)

	sink, err := NewFileSink(dir, protocol.Metadata{Name: "x.bin"})
	if err != nil {
		t.Fatal(err)
	}
	sink.Write(ct)
	sink.Close()

	if _, err := sink.Finalize(other); !errors.Is(err, crypto.ErrIntegrity) {
		t.Errorf("got %v, want ErrIntegrity", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files left behind: %v", entries)
	}
}

func TestFileSinkAbort(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, protocol.Metadata{Name: "x.bin"})
	if err != nil {
		t.Fatal(err)
	}
	sink.Write([]byte("partial"))
	if err := sink.Abort(); err != nil {
		t.Fatal(err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("spool not removed: %v", entries)
	}
}

// TestFileSinkKeepsExistingPartFile: a user's own <name>.part survives a
// sink for the same name being created and discarded.
func TestFileSinkKeepsExistingPartFile(t *testing.T) {
	dir := t.TempDir()
	mine := filepath.Join(dir, "report.pdf.part")
	if err := os.WriteFile(mine, []byte("not a spool"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink, err := NewFileSink(dir, protocol.Metadata{Name: "report.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	sink.Write([]byte("partial"))
	if err := sink.Abort(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(mine)
	if err != nil {
		t.Fatalf("existing .part file destroyed: %v", err)
	}
	if string(got) != "not a spool" {
		t.Errorf("existing .part file rewritten: %q", got)
	}
}

func TestDetectMIME(t *testing.T) {
	if got := DetectMIME("page.html", nil); !strings.HasPrefix(got, "text/html") {
		t.Errorf("by extension: got %q", got)
	}
	if got := DetectMIME("noext", []byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Errorf("by content: got %q", got)
	}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if got := DetectMIME("misnamed.txt", png); got != "image/png" {
		t.Errorf("content should win over extension: got %q", got)
	}
	if got := DetectMIME("blob", []byte{0x00, 0x01, 0x02}); got != "application/octet-stream" {
		t.Errorf("unknown: got %q", got)
	}
}
