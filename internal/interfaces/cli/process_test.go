package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/config"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/infrastructure/storage/minio"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

// execute runs the root command with the given args and stdin, returning
// stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCleanCommandStdio(t *testing.T) {
	stdin := `{"question":"导弹试射  成功","documents":[]}` + "\n"

	out, errOut, err := execute(t, stdin, "clean")
	require.NoError(t, err)
	assert.Contains(t, out, `"question":"导弹试射 成功"`)
	assert.Contains(t, errOut, "processed=1")
}

func TestRunCommandFullPipeline(t *testing.T) {
	stdin := `{"question_id":"q1","question":"导弹在哪里试射",` +
		`"answer":"@content1@在西北试射@content1@",` +
		`"supporting_paragraph":"@content1@导弹在西北试射成功@content1@",` +
		`"documents":[{"paragraphs":["导弹在西北试射成功。"]}]}` + "\n"

	out, errOut, err := execute(t, stdin, "run", "--workers", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"answer_labels":[[0,2,6]]`)
	assert.Contains(t, out, `"fake_answers":["在西北试射"]`)
	assert.Contains(t, errOut, "processed=1")
}

func TestStageCommandFileIO(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.ndjson")
	outPath := filepath.Join(dir, "out.ndjson")

	require.NoError(t, os.WriteFile(inPath,
		[]byte(`{"question":"导弹","documents":[]}`+"\n"), 0o644))

	_, _, err := execute(t, "", "clean", "-i", inPath, "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"question":"导弹"`)
}

func TestCommandSkipsGarbageLines(t *testing.T) {
	stdin := "# header\n" + `{"question":"导弹","documents":[]}` + "\nnot json\n"

	out, errOut, err := execute(t, stdin, "clean")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, errOut, "skipped=2")
}

func TestCommandRejectsPositionalArgs(t *testing.T) {
	_, _, err := execute(t, "", "clean", "unexpected")
	require.Error(t, err)
}

// fakeShardAPI is an in-memory object store for the minio:// path tests.
type fakeShardAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeShardAPI() *fakeShardAPI {
	return &fakeShardAPI{objects: map[string][]byte{}}
}

func (f *fakeShardAPI) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (f *fakeShardAPI) MakeBucket(context.Context, string, miniogo.MakeBucketOptions) error {
	return nil
}

func (f *fakeShardAPI) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, _ miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return miniogo.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return miniogo.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeShardAPI) GetObject(_ context.Context, _, key string, _ miniogo.GetObjectOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, miniogo.ErrorResponse{Code: "NoSuchKey"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeShardAPI) StatObject(_ context.Context, _, key string, _ miniogo.StatObjectOptions) (miniogo.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return miniogo.ObjectInfo{}, miniogo.ErrorResponse{Code: "NoSuchKey"}
	}
	return miniogo.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeShardAPI) RemoveObject(_ context.Context, _, key string, _ miniogo.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeShardAPI) ListObjects(_ context.Context, _ string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan miniogo.ObjectInfo, len(f.objects))
	for key, data := range f.objects {
		if strings.HasPrefix(key, opts.Prefix) {
			ch <- miniogo.ObjectInfo{Key: key, Size: int64(len(data))}
		}
	}
	close(ch)
	return ch
}

func shardCLIContext(api *fakeShardAPI) *CLIContext {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return &CLIContext{
		Config: cfg,
		Shards: minio.NewShardStoreWithAPI(api, "mrc-corpus", nil),
	}
}

func TestOpenInputShard(t *testing.T) {
	api := newFakeShardAPI()
	api.objects["raw/0001.ndjson"] = []byte(`{"question":"导弹"}` + "\n")

	in, closeIn, err := openInput(context.Background(), shardCLIContext(api), "minio://raw/0001.ndjson", nil)
	require.NoError(t, err)
	defer closeIn()

	data, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "导弹")
}

func TestOpenInputShardMissing(t *testing.T) {
	_, _, err := openInput(context.Background(), shardCLIContext(newFakeShardAPI()), "minio://raw/none.ndjson", nil)
	require.ErrorIs(t, err, minio.ErrShardNotFound)
}

func TestOpenOutputShard(t *testing.T) {
	api := newFakeShardAPI()

	out, closeOut, err := openOutput(context.Background(), shardCLIContext(api), "minio://labeled/0001.ndjson", nil)
	require.NoError(t, err)

	_, err = out.Write([]byte(`{"question":"导弹"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, closeOut())

	assert.Contains(t, string(api.objects["labeled/0001.ndjson"]), "导弹")
}

func TestShardStoreUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.MinIO.Endpoint = ""
	cliCtx := &CLIContext{Config: cfg}

	_, _, err := openInput(context.Background(), cliCtx, "minio://raw/0001.ndjson", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}
