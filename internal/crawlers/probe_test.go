package crawlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

const formPage = `<html><body><form>
<select name="ctl00$TaxYear"><option value="">--</option><option value="2024">2024</option></select>
<select id="ddlCounty"><option value="">--</option></select>
<select id="ddlAgency"></select>
<select id="ddlProject"></select>
</form></body></html>`

const loginPage = `<html><body>
<input type="submit" value="Login"/>
<input type="submit" value="Continue as Guest"/>
</body></html>`

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) { return http.Header(h), nil }

func TestProbe_LoginGate(t *testing.T) {
	var gotHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/rates", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		http.Redirect(w, r, "/Login.aspx?ReturnUrl=/rates", http.StatusFound)
	})
	mux.HandleFunc("/Login.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := models.DefaultHarvestConfig()
	cfg.TargetURL = srv.URL + "/rates"

	report, err := Probe(context.Background(), cfg, staticHeaders{"X-Test": {"yes"}})
	require.NoError(t, err)
	require.Equal(t, "yes", gotHeader)
	require.Equal(t, http.StatusOK, report.StatusCode)
	require.True(t, report.LoginGate)
	require.True(t, report.GuestButton)
	require.Zero(t, report.SelectCount)
}

func TestProbe_FormWithBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(formPage))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cfg := models.DefaultHarvestConfig()
	cfg.TargetURL = srv.URL

	report, err := Probe(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.False(t, report.LoginGate)
	require.Equal(t, 4, report.SelectCount)
	require.Equal(t, []string{"TaxYear", "County", "Agency", "Project"}, report.Fields)
}

func TestProbe_InvalidURL(t *testing.T) {
	cfg := models.DefaultHarvestConfig()
	cfg.TargetURL = "ftp://example.com"
	_, err := Probe(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestDecompressResponse(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte("hello"))
	w.Close()

	out, err := decompressResponse("GZIP", gz.Bytes())
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))

	out, err = decompressResponse("", []byte("plain"))
	require.NoError(t, err)
	require.Equal(t, "plain", string(out))

	out, err = decompressResponse("zstd", []byte("raw"))
	require.NoError(t, err)
	require.Equal(t, "raw", string(out))

	_, err = decompressResponse("gzip", []byte("not gzip"))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "gzip"))
}
