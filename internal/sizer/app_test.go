package sizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/readsizer/internal/common"
	"github.com/G-Research/readsizer/internal/common/build"
	"github.com/G-Research/readsizer/internal/common/compress"
	"github.com/G-Research/readsizer/internal/common/logging"
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/common/util"
	"github.com/G-Research/readsizer/internal/delivery"
	"github.com/G-Research/readsizer/internal/dispatch"
	"github.com/G-Research/readsizer/internal/metrics"
	"github.com/G-Research/readsizer/internal/sizer/configuration"
)

// memoryStore keeps objects in a map keyed by full path. Listing a prefix returns the names directly under it.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore(objects map[string]string) *memoryStore {
	s := &memoryStore{objects: map[string][]byte{}}
	for k, v := range objects {
		s.objects[k] = []byte(v)
	}
	return s
}

func (s *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	for path := range s.objects {
		if rest := strings.TrimPrefix(path, prefix); rest != path && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	if len(names) == 0 {
		return nil, errors.WithStack(&sizererrors.ErrNotFound{Type: "prefix", Value: prefix})
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	if !ok {
		return nil, errors.WithStack(&sizererrors.ErrNotFound{Type: "object", Value: path})
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memoryStore) Create(_ context.Context, path string) (io.WriteCloser, error) {
	return &memoryObject{store: s, path: path}, nil
}

func (s *memoryStore) get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[path]
	return b, ok
}

type memoryObject struct {
	bytes.Buffer
	store *memoryStore
	path  string
}

func (o *memoryObject) Close() error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	o.store.objects[o.path] = o.Bytes()
	return nil
}

// fakeBatch fails the submissions of the samples in fail and reports every other job as succeeded.
type fakeBatch struct {
	mu   sync.Mutex
	jobs []*dispatch.JobSpec
	fail map[string]bool
}

func (b *fakeBatch) Submit(_ context.Context, job *dispatch.JobSpec) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[string(job.Pair.ID)] {
		return "", fmt.Errorf("job queue does not exist")
	}
	b.jobs = append(b.jobs, job)
	return fmt.Sprintf("job-%d", len(b.jobs)), nil
}

func (b *fakeBatch) Describe(_ context.Context, jobIDs []string) ([]dispatch.JobStatus, error) {
	statuses := make([]dispatch.JobStatus, 0, len(jobIDs))
	for _, id := range jobIDs {
		statuses = append(statuses, dispatch.JobStatus{JobID: id, State: dispatch.JobStateSucceeded})
	}
	return statuses, nil
}

const (
	rawPrefix = "s3://bucket/delivery/raw/"
	sizPrefix = "s3://bucket/delivery/siz/"
)

func fastq(ids ...string) string {
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "@%s\nACGT\n+\nIIII\n", id)
	}
	return sb.String()
}

func testContext() *sizercontext.Context {
	return sizercontext.New(context.Background(), logging.NullEntry())
}

func testApp(t *testing.T, store *memoryStore) (*App, *bytes.Buffer) {
	var config configuration.SizerConfig
	require.NoError(t, common.LoadConfig(viper.New(), &config, configuration.Defaults, "SIZER_APP_TEST", nil))
	config.Batch.RetryDelay = time.Millisecond
	config.Batch.MaxRetryDelay = time.Millisecond
	config.Batch.PollInterval = time.Millisecond

	out := &bytes.Buffer{}
	return &App{
		Params:  &Params{Config: config},
		Out:     out,
		Store:   store,
		Metrics: metrics.NewMetrics(),
		Clock:   &util.DummyClock{T: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
	}, out
}

func deliveryStore() *memoryStore {
	return newMemoryStore(map[string]string{
		rawPrefix + "a_1.fastq.gz":               fastq("a1"),
		rawPrefix + "a_2.fastq.gz":               fastq("a2"),
		rawPrefix + "b_1.fastq.gz":               fastq("b1"),
		rawPrefix + "b_2.fastq.gz":               fastq("b2"),
		rawPrefix + "c_1.fastq.gz":               fastq("c1"),
		rawPrefix + "c_2.fastq.gz":               fastq("c2"),
		sizPrefix + "b_chunk000000.fastq.zst":    "",
		sizPrefix + "unrelated.txt":              "",
		"s3://bucket/delivery/raw/nested/x_1.fq": "",
	})
}

func TestDefaults(t *testing.T) {
	app, _ := testApp(t, nil)
	config := app.Params.Config
	assert.Equal(t, 1_000_000, int(config.Encoding.ChunkSize))
	assert.Equal(t, compress.Level(5), config.Encoding.ZstdLevel)
	assert.Equal(t, 3, config.Batch.MaxRetries)
	assert.True(t, config.Batch.Wait)
	assert.Equal(t, delivery.DefaultSampleSheet, config.Delivery.Output)
	assert.Equal(t, dispatch.DefaultExecutable, config.Batch.Executable)
	require.Len(t, config.Delivery.Markers, 1)
	assert.Equal(t, "_1.fastq.gz", config.Delivery.Markers[0].Forward)
	assert.Equal(t, "_2.fastq.gz", config.Delivery.Markers[0].Reverse)
}

func TestVersion(t *testing.T) {
	app, out := testApp(t, nil)
	require.NoError(t, app.Version())
	assert.Contains(t, out.String(), build.ReleaseVersion)
	assert.Contains(t, out.String(), build.GoVersion)
}

func TestNewLeavesStandardLoggerAlone(t *testing.T) {
	before := hookCount(logrus.StandardLogger())
	for i := 0; i < 3; i++ {
		New()
	}
	assert.Equal(t, before, hookCount(logrus.StandardLogger()))
}

func TestCountLogMessages(t *testing.T) {
	app := New()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app.CountLogMessages(logger)

	logger.Info("one")
	logger.Info("two")
	logger.Warn("three")

	assert.Equal(t, 1, hookCount(logger))
	counts := map[string]float64{}
	families, err := app.Metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != metrics.SizerMetricsPrefix+"log_messages" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				counts[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"info": 2, "warning": 1}, counts)
}

func hookCount(logger *logrus.Logger) int {
	n := 0
	for _, hooks := range logger.Hooks {
		n += len(hooks)
	}
	return n
}

func TestGenerateSampleSheet(t *testing.T) {
	store := deliveryStore()
	app, out := testApp(t, store)
	app.Params.Config.Delivery.Bucket = "bucket"
	app.Params.Config.Delivery.Delivery = "delivery"
	app.Params.Config.Delivery.Output = "s3://bucket/sheets/sheet.csv"

	require.NoError(t, app.GenerateSampleSheet(testContext()))

	sheet, ok := store.get("s3://bucket/sheets/sheet.csv")
	require.True(t, ok)
	pairs, err := delivery.ReadSampleSheet(bytes.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", string(pairs[0].ID))
	assert.Equal(t, "c", string(pairs[1].ID))
	assert.Equal(t, sizPrefix, pairs[0].OutDir)
	assert.Contains(t, out.String(), "Generating samplesheet from s3://bucket/delivery...")
	assert.Contains(t, out.String(), "Wrote 2 sample(s) to s3://bucket/sheets/sheet.csv")
}

func TestGenerateSampleSheetNothingToProcess(t *testing.T) {
	tests := map[string]struct {
		store    *memoryStore
		expected string
	}{
		"no read pairs in delivery": {
			store:    nothingFoundStore(),
			expected: "No read pairs found under " + rawPrefix,
		},
		"every pair already processed": {
			store:    nothingToDoStore(),
			expected: "All 3 sample(s) already processed, nothing to do",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app, out := testApp(t, tc.store)
			app.Params.Config.Delivery.Bucket = "bucket"
			app.Params.Config.Delivery.Delivery = "delivery"
			app.Params.Config.Delivery.Output = "s3://bucket/sheets/sheet.csv"

			require.NoError(t, app.GenerateSampleSheet(testContext()))

			assert.Contains(t, out.String(), tc.expected)
			assert.Contains(t, out.String(), "Wrote 0 sample(s) to s3://bucket/sheets/sheet.csv")
			sheet, ok := tc.store.get("s3://bucket/sheets/sheet.csv")
			require.True(t, ok)
			pairs, err := delivery.ReadSampleSheet(bytes.NewReader(sheet))
			require.NoError(t, err)
			assert.Empty(t, pairs)
		})
	}
}

func TestGenerateSampleSheetRequiresDelivery(t *testing.T) {
	app, _ := testApp(t, deliveryStore())
	app.Params.Config.Delivery.Bucket = "bucket"
	var invalid *sizererrors.ErrInvalidArgument
	assert.True(t, errors.As(app.GenerateSampleSheet(testContext()), &invalid))
}

func submitApp(t *testing.T, store *memoryStore, backend *fakeBatch) (*App, *bytes.Buffer) {
	app, out := testApp(t, store)
	app.Params.Config.Delivery.Bucket = "bucket"
	app.Params.Config.Delivery.Delivery = "delivery"
	app.Params.Config.Batch.JobQueue = "queue"
	app.Params.Config.Batch.JobDefinition = "job-def"
	app.Backend = backend
	app.StatusReader = backend
	return app, out
}

func TestSubmit(t *testing.T) {
	backend := &fakeBatch{}
	app, out := submitApp(t, deliveryStore(), backend)
	app.Params.Config.Batch.Wait = true

	require.NoError(t, app.Submit(testContext()))

	require.Len(t, backend.jobs, 2)
	ids := []string{string(backend.jobs[0].Pair.ID), string(backend.jobs[1].Pair.ID)}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
	for _, job := range backend.jobs {
		assert.Equal(t, "queue", job.Queue)
		assert.Equal(t, "job-def", job.Definition)
		assert.Contains(t, job.Command, sizPrefix+string(job.Pair.ID))
	}

	output := out.String()
	assert.Contains(t, output, "READ-SIZER PIPELINE - 2024-03-01 12:30:00")
	assert.Contains(t, output, "Found 2 sample(s) to process")
	assert.Contains(t, output, "Submitting jobs...")
	assert.Contains(t, output, "All jobs completed!")
	assert.Contains(t, output, "0 of 2 sample(s) failed")
}

func TestSubmitIgnoreExisting(t *testing.T) {
	backend := &fakeBatch{}
	app, out := submitApp(t, deliveryStore(), backend)
	app.Params.Config.Delivery.IgnoreExisting = true

	require.NoError(t, app.Submit(testContext()))
	assert.Len(t, backend.jobs, 3)
	assert.Contains(t, out.String(), "Found 3 sample(s) to process")
}

func TestSubmitMonitoring(t *testing.T) {
	tests := map[string]struct {
		mutate    func(app *App)
		monitored bool
	}{
		"monitors by default": {mutate: func(app *App) {}, monitored: true},
		"returns once submitted": {
			mutate:    func(app *App) { app.Params.Config.Batch.Wait = false },
			monitored: false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBatch{}
			app, out := submitApp(t, deliveryStore(), backend)
			tc.mutate(app)

			require.NoError(t, app.Submit(testContext()))
			assert.Len(t, backend.jobs, 2)
			if tc.monitored {
				assert.Contains(t, out.String(), "All jobs completed!")
			} else {
				assert.NotContains(t, out.String(), "All jobs completed!")
			}
		})
	}
}

func TestSubmitDryRun(t *testing.T) {
	app, out := submitApp(t, deliveryStore(), nil)
	app.Backend = nil
	app.StatusReader = nil
	app.Params.Config.Batch.DryRun = true
	app.Params.Config.Batch.Wait = true

	require.NoError(t, app.Submit(testContext()))
	assert.Contains(t, out.String(), "Dry run complete - no jobs were actually submitted")
	assert.NotContains(t, out.String(), "All jobs completed!")
	assert.Contains(t, out.String(), "dry-run-a")
}

func nothingFoundStore() *memoryStore {
	return newMemoryStore(map[string]string{rawPrefix + "README.txt": ""})
}

func nothingToDoStore() *memoryStore {
	store := deliveryStore()
	for _, id := range []string{"a", "c"} {
		store.objects[sizPrefix+id+"_chunk000000.fastq.zst"] = nil
	}
	return store
}

func TestSubmitNothingToProcess(t *testing.T) {
	tests := map[string]struct {
		store    *memoryStore
		expected string
	}{
		"no read pairs in delivery": {
			store:    nothingFoundStore(),
			expected: "No read pairs found under " + rawPrefix,
		},
		"every pair already processed": {
			store:    nothingToDoStore(),
			expected: "All 3 sample(s) already processed, nothing to do (use --ignore-existing to reprocess)",
		},
	}
	outputs := map[string]string{}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBatch{}
			app, out := submitApp(t, tc.store, backend)

			require.NoError(t, app.Submit(testContext()))
			assert.Empty(t, backend.jobs)
			assert.Contains(t, out.String(), tc.expected)
			assert.NotContains(t, out.String(), "No samples to process")
			assert.NotContains(t, out.String(), "Submitting jobs...")
			outputs[name] = out.String()
		})
	}
	assert.NotEqual(t, outputs["no read pairs in delivery"], outputs["every pair already processed"])
}

func TestSubmitEmptySampleSheet(t *testing.T) {
	store := deliveryStore()
	var sheet bytes.Buffer
	require.NoError(t, delivery.WriteSampleSheet(&sheet, []delivery.ReadPair{}))
	store.objects["s3://bucket/sheet.csv"] = sheet.Bytes()
	backend := &fakeBatch{}
	app, out := submitApp(t, store, backend)
	app.Params.Config.Delivery.Bucket = ""
	app.Params.Config.Delivery.Delivery = ""
	app.Params.Config.Delivery.SampleSheet = "s3://bucket/sheet.csv"

	require.NoError(t, app.Submit(testContext()))
	assert.Empty(t, backend.jobs)
	assert.Contains(t, out.String(), "No samples to process")
}

func TestSubmitFromSampleSheet(t *testing.T) {
	store := deliveryStore()
	var sheet bytes.Buffer
	require.NoError(t, delivery.WriteSampleSheet(&sheet, []delivery.ReadPair{
		{ID: "b", Forward: rawPrefix + "b_1.fastq.gz", Reverse: rawPrefix + "b_2.fastq.gz", OutDir: sizPrefix},
	}))
	store.objects["s3://bucket/sheet.csv"] = sheet.Bytes()
	backend := &fakeBatch{}
	app, out := submitApp(t, store, backend)
	app.Params.Config.Delivery.Bucket = ""
	app.Params.Config.Delivery.Delivery = ""
	app.Params.Config.Delivery.SampleSheet = "s3://bucket/sheet.csv"

	require.NoError(t, app.Submit(testContext()))
	// Sample sheets are taken as is, even though b already has output.
	require.Len(t, backend.jobs, 1)
	assert.Equal(t, "b", string(backend.jobs[0].Pair.ID))
	assert.Contains(t, out.String(), "Loading samples from s3://bucket/sheet.csv...")
}

func TestSubmitReportsFailures(t *testing.T) {
	backend := &fakeBatch{fail: map[string]bool{"a": true}}
	app, out := submitApp(t, deliveryStore(), backend)

	err := app.Submit(testContext())
	var permanent *sizererrors.ErrPermanentFailure
	require.True(t, errors.As(err, &permanent))
	assert.Equal(t, "a", permanent.SampleID)
	assert.Len(t, backend.jobs, 1)
	assert.Contains(t, out.String(), "1 of 2 sample(s) failed")
}

func TestSubmitValidation(t *testing.T) {
	tests := map[string]func(app *App){
		"sample sheet and bucket": func(app *App) { app.Params.Config.Delivery.SampleSheet = "sheet.csv" },
		"no input":                func(app *App) { app.Params.Config.Delivery.Bucket = "" },
		"bucket without delivery": func(app *App) { app.Params.Config.Delivery.Delivery = "" },
		"no job queue":            func(app *App) { app.Params.Config.Batch.JobQueue = "" },
		"no job definition":       func(app *App) { app.Params.Config.Batch.JobDefinition = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBatch{}
			app, out := submitApp(t, deliveryStore(), backend)
			mutate(app)
			var invalid *sizererrors.ErrInvalidArgument
			assert.True(t, errors.As(app.Submit(testContext()), &invalid))
			assert.Empty(t, out.String())
			assert.Empty(t, backend.jobs)
		})
	}
}

func TestEncode(t *testing.T) {
	store := newMemoryStore(map[string]string{
		rawPrefix + "a_1.fastq": fastq("r1/1", "r2/1", "r3/1"),
		rawPrefix + "a_2.fastq": fastq("r1/2", "r2/2", "r3/2"),
	})
	app, out := testApp(t, store)
	app.Params.Config.Encoding.ChunkSize = 2
	app.Params.Encode = EncodeParams{
		Forward: rawPrefix + "a_1.fastq",
		Reverse: rawPrefix + "a_2.fastq",
		Output:  sizPrefix + "a",
	}
	app.Params.Config.MetricsFile = filepath.Join(t.TempDir(), "sizer.prom")

	require.NoError(t, app.Encode(testContext()))

	expected := []string{fastq("r1/1", "r1/2", "r2/1", "r2/2"), fastq("r3/1", "r3/2")}
	for i, want := range expected {
		chunk, ok := store.get(fmt.Sprintf("%sa_chunk%06d.fastq.zst", sizPrefix, i))
		require.True(t, ok, "chunk %d", i)
		r, err := compress.NewZstdReader(bytes.NewReader(chunk))
		require.NoError(t, err)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Contains(t, out.String(), "Wrote 3 read pair(s) to 2 chunk(s) under "+sizPrefix+"a")

	prom, err := os.ReadFile(app.Params.Config.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "sizer_pairs_encoded 3")
	assert.Contains(t, string(prom), "sizer_chunks_written 2")
}

func TestEncodeMissingArguments(t *testing.T) {
	app, _ := testApp(t, newMemoryStore(nil))
	app.Params.Encode = EncodeParams{Forward: "a_1.fastq", Reverse: "a_2.fastq"}
	var invalid *sizererrors.ErrInvalidArgument
	assert.True(t, errors.As(app.Encode(testContext()), &invalid))
}

func TestEncodeMissingInput(t *testing.T) {
	app, _ := testApp(t, newMemoryStore(nil))
	app.Params.Encode = EncodeParams{Forward: "a_1.fastq", Reverse: "a_2.fastq", Output: "out/a"}
	assert.True(t, sizererrors.IsNotFound(app.Encode(testContext())))
}
