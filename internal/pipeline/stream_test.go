package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/resolver"
	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/mrc/sample"
	"github.com/Guhaifudeng/les-military-mrc-rank7/pkg/errors"
)

func passthroughFactory() *Pipeline { return New(nil) }

func outputLines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestStreamSkipsInvalidLines(t *testing.T) {
	input := strings.Join([]string{
		"# corpus header",
		`{"question_id":"q1","documents":[]}`,
		`{broken json`,
		"",
		`{"question_id":"q2","documents":[]}`,
	}, "\n")

	s := NewStream(passthroughFactory, 1, 0)
	var out bytes.Buffer
	stats, err := s.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Read)
	assert.Equal(t, int64(3), stats.Skipped)
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)

	lines := outputLines(t, &out)
	require.Len(t, lines, 2)
	// single worker keeps input order
	assert.Contains(t, lines[0], `"question_id":"q1"`)
	assert.Contains(t, lines[1], `"question_id":"q2"`)
}

func TestStreamSkipsOversizedLine(t *testing.T) {
	huge := "{" + strings.Repeat("x", 70*1024)
	input := huge + "\n" + `{"question_id":"q1","documents":[]}` + "\n"

	s := NewStream(passthroughFactory, 1, 0)
	var out bytes.Buffer
	stats, err := s.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Read)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(1), stats.Processed)

	lines := outputLines(t, &out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"question_id":"q1"`)
}

func TestStreamWorkerPoolProcessesAll(t *testing.T) {
	var input strings.Builder
	want := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("q%03d", i)
		want[id] = true
		fmt.Fprintf(&input, `{"question_id":%q,"documents":[]}`+"\n", id)
	}

	s := NewStream(passthroughFactory, 4, 0)
	var out bytes.Buffer
	stats, err := s.Run(context.Background(), strings.NewReader(input.String()), &out)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stats.Processed)

	got := map[string]bool{}
	for _, line := range outputLines(t, &out) {
		var smp sample.Sample
		require.NoError(t, json.Unmarshal([]byte(line), &smp))
		got[smp.QuestionID] = true
	}
	assert.Equal(t, want, got)
}

func TestStreamEmitsSampleOnStageFailure(t *testing.T) {
	factory := func() *Pipeline {
		var calls []string
		return New([]Stage{&recordingStage{
			name: "broken",
			log:  &calls,
			err:  errors.New(errors.CodeInternal, "boom"),
		}})
	}

	s := NewStream(factory, 1, 0)
	var out bytes.Buffer
	stats, err := s.Run(context.Background(),
		strings.NewReader(`{"question_id":"q1","documents":[]}`+"\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Processed)

	lines := outputLines(t, &out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"question_id":"q1"`)
}

func TestStreamKeepsChineseLiteral(t *testing.T) {
	s := NewStream(passthroughFactory, 1, 0)
	var out bytes.Buffer
	_, err := s.Run(context.Background(),
		strings.NewReader(`{"question":"导弹在哪里试射","documents":[]}`+"\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "导弹在哪里试射")
}

func TestStreamEmptyInput(t *testing.T) {
	s := NewStream(passthroughFactory, 2, 0)
	var out bytes.Buffer
	stats, err := s.Run(context.Background(), strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, out.String())
}

func TestStreamEndToEnd(t *testing.T) {
	line := `{"question_id":"q1","question":"导弹在哪里试射",` +
		`"answer":"@content1@在西北试射@content1@",` +
		`"supporting_paragraph":"@content1@导弹在西北试射成功@content1@",` +
		`"documents":[{"paragraphs":["导弹在西北试射成功。","优惠促销广告。"]}]}`

	factory := func() *Pipeline {
		stages := []Stage{
			NewCleanStage(),
			NewFilterStage(0.1),
			NewLabelStage(resolver.New(nil), nil),
			NewFeatureStage(Collaborators{}, nil),
		}
		return New(stages)
	}

	s := NewStream(factory, 1, 0)
	var out bytes.Buffer
	stats, err := s.Run(context.Background(), strings.NewReader(line+"\n"), &out)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Processed)

	var smp sample.Sample
	require.NoError(t, json.Unmarshal(out.Bytes(), &smp))
	require.Len(t, smp.AnswerLabels, 1)
	assert.Equal(t, sample.AnswerLabel{DocIndex: 0, Start: 2, End: 6}, smp.AnswerLabels[0])
	assert.Equal(t, []string{"在西北试射"}, smp.FakeAnswers)
	assert.InDelta(t, 1.0, smp.CeilRougeL, 1e-9)
	// the ad paragraph was filtered before content assembly
	assert.Equal(t, "导弹在西北试射成功。", smp.Documents[0].Content)
	assert.Len(t, smp.Documents[0].CharPos, 10)
}
