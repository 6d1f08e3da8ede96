package page

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySource struct {
	stubs    []CachedStub
	lastExpr query.Expression
	err      error
}

func (m *memorySource) Stubs(ctx context.Context, expr query.Expression) ([]CachedStub, error) {
	m.lastExpr = expr
	return m.stubs, m.err
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h int) *time.Time {
	t := base.Add(time.Duration(h) * time.Hour)
	return &t
}

func stub(id string, state instance.WorkflowState, created int) instance.ProcessorStub {
	return instance.ProcessorStub{
		InstanceID: id,
		ModelID:    "m1",
		State:      state,
		Info:       instance.ProcessorInfo{CreationDate: *at(created)},
	}
}

func TestPaginator_TwentyFiveHitsThreePages(t *testing.T) {
	src := &memorySource{}
	for i := 0; i < 25; i++ {
		src.stubs = append(src.stubs, CachedStub{Stub: stub(fmt.Sprintf("i%02d", i), instance.ExecutionComplete, i)})
	}
	p := NewPaginator(src)

	for num, size := range map[int]int{1: 10, 2: 10, 3: 5} {
		info, err := NewPageInfo(10, num)
		require.NoError(t, err)
		pg, err := p.GetPage(context.Background(), info, nil, ByCreationDate)
		require.NoError(t, err)
		assert.Equal(t, 3, pg.TotalPages)
		assert.Equal(t, 25, pg.NumOfHits)
		assert.Len(t, pg.Items, size)
		assert.Equal(t, num == 3, pg.IsLastPage())
	}

	info, _ := NewPageInfo(10, 3)
	pg, err := p.GetPage(context.Background(), info, nil, ByCreationDate)
	require.NoError(t, err)
	assert.Equal(t, "i20", pg.Items[0].InstanceID)
	assert.Equal(t, query.MatchAll{}, src.lastExpr)

	// 超出范围的页为空
	info, _ = NewPageInfo(10, 4)
	pg, err = p.GetPage(context.Background(), info, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, pg.Items)
	assert.Equal(t, 25, pg.NumOfHits)
}

func TestPaginator_CategoryFilter(t *testing.T) {
	src := &memorySource{stubs: []CachedStub{
		{Stub: stub("a", instance.Executing, 1)},
		{Stub: stub("b", instance.ExecutionComplete, 2)},
		{Stub: stub("c", instance.Failure.WithMessage("boom"), 3)},
		{Stub: stub("d", instance.Pending, 4)},
	}}
	p := NewPaginator(src)

	pg, err := p.GetPage(context.Background(), PageInfo{PageSize: 10, PageNum: 1}, &PageFilter{Category: instance.CategoryDone}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, pg.NumOfHits)
	for _, s := range pg.Items {
		assert.Equal(t, instance.CategoryDone, s.State.Category)
	}
	assert.Equal(t, query.Equals(instance.KeyStateCategory, "DONE"), src.lastExpr)
}

func TestPageFilter_Accept(t *testing.T) {
	s := stub("a", instance.Executing, 1)
	meta := map[string][]string{"Product": {"p1", "p2"}}

	assert.True(t, (*PageFilter)(nil).Accept(s, meta))
	assert.True(t, (&PageFilter{ModelID: "m1", State: "Executing"}).Accept(s, meta))
	assert.False(t, (&PageFilter{ModelID: "m2"}).Accept(s, meta))
	assert.False(t, (&PageFilter{State: "Failure"}).Accept(s, meta))
	assert.True(t, (&PageFilter{Metadata: map[string][]string{"Product": {"p9", "p2"}}}).Accept(s, meta))
	assert.False(t, (&PageFilter{Metadata: map[string][]string{"Product": {"p9"}}}).Accept(s, meta))
	assert.False(t, (&PageFilter{Metadata: map[string][]string{"Missing": {"x"}}}).Accept(s, meta))
}

func TestPageFilter_Expression(t *testing.T) {
	f := &PageFilter{ModelID: "m1", Metadata: map[string][]string{"b": {"2"}, "a": {"1", "x"}}}
	assert.Equal(t, query.AllOf(
		query.Equals(instance.KeyModelID, "m1"),
		query.Equals("a", "1", "x"),
		query.Equals("b", "2"),
	), f.Expression())
	assert.Equal(t, query.MatchAll{}, (&PageFilter{}).Expression())
}

func TestOrderings(t *testing.T) {
	notStarted := stub("not-started", instance.Pending, 0)
	early := stub("early", instance.ExecutionComplete, 1)
	early.Info.ExecutionDate = at(2)
	early.Info.CompletionDate = at(3)
	early.TimesBlocked = 1
	late := stub("late", instance.Executing, 2)
	late.Info.ExecutionDate = at(5)
	late.TimesBlocked = 4

	ids := func(stubs []instance.ProcessorStub) []string {
		out := make([]string, len(stubs))
		for i, s := range stubs {
			out[i] = s.InstanceID
		}
		return out
	}
	src := &memorySource{stubs: []CachedStub{{Stub: late}, {Stub: early}, {Stub: notStarted}}}
	p := NewPaginator(src)
	info := PageInfo{PageSize: 10, PageNum: 1}
	now := func() time.Time { return *at(10) }

	cases := map[string][]string{
		OrderCreationDate:   {"not-started", "early", "late"},
		OrderExecutionDate:  {"not-started", "early", "late"},
		OrderCompletionDate: {"late", "not-started", "early"},
		OrderAliveTime:      {"early", "late", "not-started"},
		OrderTimesBlocked:   {"late", "early", "not-started"},
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			cmp, err := ParseOrdering(name, now)
			require.NoError(t, err)
			pg, err := p.GetPage(context.Background(), info, nil, cmp)
			require.NoError(t, err)
			assert.Equal(t, want, ids(pg.Items))
		})
	}

	pg, err := p.GetPage(context.Background(), info, nil, Reverse(ByCreationDate))
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "early", "not-started"}, ids(pg.Items))

	_, err = ParseOrdering("Priority", now)
	assert.Error(t, err)
}

func TestPaginator_Errors(t *testing.T) {
	p := NewPaginator(&memorySource{err: errors.New("db down")})
	_, err := p.GetPage(context.Background(), PageInfo{PageSize: 10, PageNum: 1}, nil, nil)
	assert.Error(t, err)

	_, err = p.GetPage(context.Background(), PageInfo{PageSize: 0, PageNum: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPageInfo)
	_, err = NewPageInfo(10, 0)
	assert.ErrorIs(t, err, ErrInvalidPageInfo)
}
