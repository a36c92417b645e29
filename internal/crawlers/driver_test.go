package crawlers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/RecoveryAshes/taxharvest/internal/crawlers"
	"github.com/RecoveryAshes/taxharvest/internal/crawlers/crawlertest"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/stretchr/testify/require"
)

func newSite() *crawlertest.Site {
	return &crawlertest.Site{
		Counties: []models.Option{{Value: "A", Label: "ALPHA"}, {Value: "B", Label: "BRAVO"}},
		Agencies: map[string][]models.Option{
			"A": {{Value: "a1", Label: "Alpha Fire"}},
		},
		Projects: map[string][]models.Option{
			"A/a1": {{Value: "p1", Label: "Project One"}},
		},
	}
}

func open(t *testing.T, site *crawlertest.Site) *crawlertest.Session {
	t.Helper()
	s, err := site.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.(*crawlertest.Session)
}

func TestDriver_SelectMatchedAndSettles(t *testing.T) {
	site := newSite()
	s := open(t, site)
	d := crawlers.NewDriver(crawlers.NewMatcher(0))

	c, err := d.Select(context.Background(), s, models.FieldCounty, "bravo")
	require.NoError(t, err)
	require.False(t, c.Forced())
	require.Equal(t, "B", c.Value)
	require.Equal(t, models.MatchExactLabel, c.Outcome.Kind)
	require.Equal(t, "B", s.Selected(models.FieldCounty))
	require.Equal(t, []models.FieldKind{models.FieldCounty}, s.Settled())
}

func TestDriver_ForcesUnknownValue(t *testing.T) {
	site := newSite()
	s := open(t, site)
	d := crawlers.NewDriver(nil)

	c, err := d.Select(context.Background(), s, models.FieldCounty, "ZULU")
	require.NoError(t, err)
	require.True(t, c.Forced())
	require.Equal(t, []string{"County=ZULU"}, s.Forced())
	require.Equal(t, "ZULU", s.Selected(models.FieldCounty))
}

func TestDriver_ChangingUpstreamClearsDownstream(t *testing.T) {
	site := newSite()
	s := open(t, site)
	d := crawlers.NewDriver(nil)
	ctx := context.Background()

	_, err := d.Select(ctx, s, models.FieldCounty, "A")
	require.NoError(t, err)
	_, err = d.Select(ctx, s, models.FieldAgency, "a1")
	require.NoError(t, err)

	_, err = d.Select(ctx, s, models.FieldCounty, "B")
	require.NoError(t, err)
	require.Empty(t, s.Selected(models.FieldAgency))

	opts, err := crawlers.ListOptions(ctx, s, models.FieldAgency)
	require.NoError(t, err)
	require.Empty(t, opts)
}

func TestDriver_SelectionErrorWrapsCause(t *testing.T) {
	boom := errors.New("postback failed")
	site := newSite()
	site.FailSelect = map[string]error{"County=A": boom}
	s := open(t, site)

	_, err := crawlers.NewDriver(nil).Select(context.Background(), s, models.FieldCounty, "A")
	require.ErrorIs(t, err, boom)

	var se *models.SelectionError
	require.ErrorAs(t, err, &se)
	require.Equal(t, models.FieldCounty, se.Field)
	require.Equal(t, "A", se.Value)
}

func TestDriver_ClosedSession(t *testing.T) {
	site := newSite()
	s := open(t, site)
	require.NoError(t, s.Close())

	_, err := crawlers.NewDriver(nil).Select(context.Background(), s, models.FieldCounty, "A")
	require.ErrorIs(t, err, models.ErrSessionClosed)
	require.Equal(t, 1, site.Closed())
}

func TestListOptions_DropsPlaceholders(t *testing.T) {
	site := newSite()
	s := open(t, site)

	opts, err := crawlers.ListOptions(context.Background(), s, models.FieldCounty)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, opts.Values())
	require.Equal(t, []string{"ALPHA", "BRAVO"}, opts.Labels())
}

func TestExtract_FromSession(t *testing.T) {
	site := newSite()
	site.Results = map[string]string{
		"A/a1/p1": crawlertest.RatesTable([4]string{"1010_City Hall", "0.001519", "0.000951", "0.001255"}),
	}
	s := open(t, site)
	d := crawlers.NewDriver(nil)
	ctx := context.Background()

	for _, step := range []struct {
		field models.FieldKind
		value string
	}{
		{models.FieldCounty, "A"},
		{models.FieldAgency, "a1"},
		{models.FieldProject, "p1"},
	} {
		_, err := d.Select(ctx, s, step.field, step.value)
		require.NoError(t, err)
	}

	got, err := crawlers.Extract(ctx, s, crawlers.ExtractOptions{NoDataPhrases: []string{"No records found"}})
	require.NoError(t, err)
	require.True(t, got.HeaderValidated)
	require.Len(t, got.Rows, 1)
	require.Equal(t, "1010_City Hall", got.Rows[0].EntityName)
}
