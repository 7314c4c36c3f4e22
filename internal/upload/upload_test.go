package upload

import (
	"bytes"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// 最小合法 PNG（8 字節魔數 + IHDR 片段即可被嗅探識別）
var pngBytes = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00,
}

func buildFileHeader(t *testing.T, fileName string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("writing form file failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer failed: %v", err)
	}

	reader := multipart.NewReader(body, w.Boundary())
	form, err := reader.ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm failed: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })

	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("expected 1 file in form, got %d", len(files))
	}
	return files[0]
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "media"), "/uploads/chat")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestSavePNG(t *testing.T) {
	store := newTestStore(t)

	fh := buildFileHeader(t, "photo.png", pngBytes)
	result, err := store.Save(fh)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if result.Kind != "image" {
		t.Errorf("expected image kind, got %q", result.Kind)
	}
	if result.MIME != "image/png" {
		t.Errorf("expected image/png, got %q", result.MIME)
	}
	if result.OriginalName != "photo.png" {
		t.Errorf("original name lost: %q", result.OriginalName)
	}
	if !strings.HasPrefix(result.URL, "/uploads/chat/") {
		t.Errorf("unexpected url: %q", result.URL)
	}
	if result.Size != int64(len(pngBytes)) {
		t.Errorf("size = %d, want %d", result.Size, len(pngBytes))
	}

	// 保存的檔名是隨機的，不是原始檔名
	saved := strings.TrimPrefix(result.URL, "/uploads/chat/")
	if saved == "photo.png" {
		t.Error("saved file should have a generated name")
	}
	data, err := os.ReadFile(filepath.Join(store.Dir(), saved))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Error("saved content differs from upload")
	}
}

func TestSaveSniffsContentNotExtension(t *testing.T) {
	store := newTestStore(t)

	// PNG 內容偽裝成 .txt：以嗅探結果為準
	fh := buildFileHeader(t, "innocent.txt", pngBytes)
	result, err := store.Save(fh)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Kind != "image" || result.MIME != "image/png" {
		t.Errorf("content sniffing not applied: %+v", result)
	}
}

func TestSavePlainText(t *testing.T) {
	store := newTestStore(t)

	fh := buildFileHeader(t, "notes.txt", []byte("meeting notes\nsecond line\n"))
	result, err := store.Save(fh)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Kind != "file" {
		t.Errorf("expected file kind for text, got %q", result.Kind)
	}
}

func TestSaveRejectsUnknownType(t *testing.T) {
	store := newTestStore(t)

	// ELF 魔數不在允許清單中
	fh := buildFileHeader(t, "tool.bin", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02, 0x01, 0x01, 0x00})
	if _, err := store.Save(fh); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}

	// 被拒絕的上傳不應留下檔案
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected upload left %d files behind", len(entries))
	}
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	store := newTestStore(t)

	fh := buildFileHeader(t, "big.png", pngBytes)
	fh.Size = maxFileSize() + 1

	if _, err := store.Save(fh); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestClassifyWalksParentChain(t *testing.T) {
	store := newTestStore(t)

	// WAV 常被嗅探為 audio/x-wav，沿父鏈應匹配到 audio
	wav := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	wav = append(wav, []byte("WAVEfmt ")...)
	fh := buildFileHeader(t, "clip.wav", wav)

	result, err := store.Save(fh)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if result.Kind != "audio" {
		t.Errorf("expected audio kind, got %q (mime %q)", result.Kind, result.MIME)
	}
}
