package instance

import (
	"testing"
	"time"

	"github.com/LENAX/wengine/pkg/core/query"
	"github.com/LENAX/wengine/pkg/core/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestInstance() *TaskInstance {
	return New(Spec{
		ModelID:   "model-1",
		TaskName:  "ingest",
		Body:      "noop",
		Config:    task.Config{"Queue": {"fast"}, KeyState: {"ignored"}},
		Context:   task.NewExecutionContext(map[string][]string{"Product": {"a", "b"}}),
		CreatedAt: created,
	})
}

func TestNew_Defaults(t *testing.T) {
	inst := newTestInstance()
	assert.Empty(t, inst.ID())
	assert.True(t, inst.State().Is(Pending))
	assert.Equal(t, CategoryWaiting, inst.State().Category)
	assert.Equal(t, 1, inst.LoadWeight())
	assert.Equal(t, created, inst.Info().CreationDate)
	assert.Nil(t, inst.Info().ExecutionDate)
}

func TestTransition_SetsDates(t *testing.T) {
	inst := newTestInstance()
	start := created.Add(time.Minute)
	end := created.Add(2 * time.Minute)

	inst.Transition(Executing, start)
	inst.Transition(Executing, end)
	require.NotNil(t, inst.Info().ExecutionDate)
	assert.Equal(t, start, *inst.Info().ExecutionDate)
	assert.Nil(t, inst.Info().CompletionDate)

	inst.Transition(Failure.WithMessage("boom"), end)
	require.NotNil(t, inst.Info().CompletionDate)
	assert.Equal(t, end, *inst.Info().CompletionDate)
	assert.True(t, inst.State().Terminal())
	assert.Equal(t, "boom", inst.State().Message)
	assert.Equal(t, 2*time.Minute, inst.Info().AliveTime(time.Now()))
}

func TestBuckets_RoundTrip(t *testing.T) {
	inst := newTestInstance()
	inst.MarkBlocked()
	inst.Transition(Executing, created.Add(time.Second))
	inst.Transition(ExecutionComplete, created.Add(2*time.Second))

	buckets := inst.ToBuckets()
	require.Len(t, buckets, 1)
	b := buckets[0]

	state, _ := b.Term(KeyState)
	assert.Equal(t, []string{"ExecutionComplete"}, state.Values)
	cat, _ := b.Term(KeyStateCategory)
	assert.Equal(t, []string{"DONE"}, cat.Values)
	cd, _ := b.Term(KeyCreationDate)
	assert.Equal(t, []string{"2024-01-02T03:04:05.000Z"}, cd.Values)
	product, _ := b.Term("Product")
	assert.Equal(t, []string{"a", "b"}, product.Values)

	stub := StubFromBucket("id-1", b, time.Now())
	assert.Equal(t, "id-1", stub.InstanceID)
	assert.Equal(t, "model-1", stub.ModelID)
	assert.True(t, stub.State.Is(ExecutionComplete))
	assert.Equal(t, CategoryDone, stub.State.Category)
	assert.Equal(t, 1, stub.TimesBlocked)
	assert.Equal(t, created, stub.Info.CreationDate)
	require.NotNil(t, stub.Info.CompletionDate)
	assert.Equal(t, created.Add(2*time.Second), *stub.Info.CompletionDate)

	restored := FromBucket("id-1", b, time.Now())
	assert.Equal(t, "noop", restored.BodyName())
	assert.Equal(t, []string{"fast"}, restored.Config()["Queue"])
	assert.Equal(t, []string{"a", "b"}, restored.Context().Get("Product"))

	// 再次转换不会重复累积值
	again := restored.ToBuckets()[0]
	product, _ = again.Term("Product")
	assert.Equal(t, []string{"a", "b"}, product.Values)
}

func TestStubFromBucket_MissingCreationDateUsesReceipt(t *testing.T) {
	b := newTestInstance().ToBuckets()[0]
	_, ok := Metadata(b)[KeyCreationDate]
	assert.True(t, ok)

	fallback := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	noDate := bucketWithout(b, KeyCreationDate)
	stub := StubFromBucket("x", noDate, fallback)
	assert.Equal(t, fallback, stub.Info.CreationDate)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("done")
	require.NoError(t, err)
	assert.Equal(t, CategoryDone, c)

	_, err = ParseCategory("finished")
	assert.Error(t, err)
}

func bucketWithout(b *query.TermBucket, key string) *query.TermBucket {
	out := query.NewTermBucket(b.Name)
	for _, term := range b.Terms() {
		if term.Name != key {
			out.AddTerm(term)
		}
	}
	return out
}
