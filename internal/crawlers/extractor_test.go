package crawlers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testPhrases = []string{"No records found", "No data available", "No results"}

func ptr(v float64) *float64 { return &v }

func TestParseResults_GridWithHeader(t *testing.T) {
	html := `<html><body>
<div role="grid">
  <div role="row">
    <span role="columnheader">Entity</span>
    <span role="columnheader">Real Property</span>
    <span role="columnheader">Personal Property</span>
    <span role="columnheader">Centrally Assessed</span>
  </div>
  <div role="row">
    <span role="gridcell">1010_City Hall</span>
    <span role="gridcell">0.001519</span>
    <span role="gridcell">0.000951</span>
    <span role="gridcell">0.001255</span>
  </div>
</div>
</body></html>`

	got, err := ParseResults(html, ExtractOptions{NoDataPhrases: testPhrases})
	require.NoError(t, err)
	require.False(t, got.Empty)
	require.True(t, got.HeaderValidated)
	require.Len(t, got.Rows, 1)

	row := got.Rows[0]
	require.Equal(t, "1010_City Hall", row.EntityName)
	require.Equal(t, ptr(0.001519), row.Real)
	require.Equal(t, ptr(0.000951), row.Personal)
	require.Equal(t, ptr(0.001255), row.Central)
	require.Equal(t, 0.001519, row.Primary())
}

func TestParseResults_HeaderOrderDiffersFromPosition(t *testing.T) {
	html := `<table>
<tr><th>Entity</th><th>Note</th><th>Real</th><th>Personal</th><th>Centrally</th></tr>
<tr><td>2020_School</td><td>0.123456</td><td>0.002000</td><td></td><td>0.003000</td></tr>
</table>`

	got, err := ParseResults(html, ExtractOptions{})
	require.NoError(t, err)
	require.True(t, got.HeaderValidated)
	require.Len(t, got.Rows, 1)
	require.Equal(t, ptr(0.002), got.Rows[0].Real)
	require.Nil(t, got.Rows[0].Personal)
	require.Equal(t, ptr(0.003), got.Rows[0].Central)
	require.Equal(t, 0.002, got.Rows[0].Primary())
}

func TestParseResults_PositionalWithoutHeader(t *testing.T) {
	html := `<table><tbody>
<tr><td>3030_Library</td><td>n/a</td><td>0.0004</td><td>0.000500</td></tr>
<tr><td>3030_Library</td><td>n/a</td><td>0.0004</td><td>0.000500</td></tr>
<tr><td>Total</td><td>0.0009</td></tr>
</tbody></table>`

	got, err := ParseResults(html, ExtractOptions{})
	require.NoError(t, err)
	require.False(t, got.HeaderValidated)
	require.Len(t, got.Rows, 1, "重复行应被去重, 非实体行应被丢弃")
	require.Equal(t, ptr(0.0004), got.Rows[0].Real)
	require.Equal(t, ptr(0.0005), got.Rows[0].Personal)
	require.Nil(t, got.Rows[0].Central)
}

func TestParseResults_NoDataPhrase(t *testing.T) {
	html := `<body><div class="msg">NO RECORDS FOUND for this project</div>
<table><tr><td>1010_City</td><td>0.001000</td></tr></table></body>`

	got, err := ParseResults(html, ExtractOptions{NoDataPhrases: testPhrases})
	require.NoError(t, err)
	require.True(t, got.Empty)
	require.Empty(t, got.Rows)
	require.Equal(t, "No records found", got.Reason)
}

func TestParseResults_RowsWithoutRatesAreDropped(t *testing.T) {
	html := `<table>
<tr><td>4040_Fire District</td><td>pending</td><td>1.5</td></tr>
<tr><td>4040</td><td>0.001000</td></tr>
<tr><td>4041_Only</td></tr>
</table>`

	got, err := ParseResults(html, ExtractOptions{})
	require.NoError(t, err)
	require.True(t, got.Empty)
}

func TestParseResults_FallsBackToLooseRows(t *testing.T) {
	// 没有 table, 也没有 grid
	html := `<div>
<div role="row"><span role="gridcell">5050_Water</span><span role="gridcell">0.000777</span></div>
</div>`

	got, err := ParseResults(html, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	require.Equal(t, "5050_Water", got.Rows[0].EntityName)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"0.001519", ptr(0.001519)},
		{" 0.0004 ", ptr(0.0004)},
		{"0.123", nil},
		{"0.1234567", nil},
		{"1.001519", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, parseRate(tt.in))
		})
	}
}
