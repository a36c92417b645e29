package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/taxharvest/internal/models"
	"github.com/RecoveryAshes/taxharvest/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
)

// ProbeReport 不启动浏览器时对目标页的快速诊断
type ProbeReport struct {
	RequestURL  string        `json:"request_url"`
	FinalURL    string        `json:"final_url"`
	StatusCode  int           `json:"status_code"`
	Encoding    string        `json:"encoding,omitempty"`
	LoginGate   bool          `json:"login_gate"`
	GuestButton bool          `json:"guest_button"`
	SelectCount int           `json:"select_count"`
	Fields      []string      `json:"fields"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Probe 用普通HTTP请求抓取目标页, 判断登录页和表单下拉框是否存在
// 表单本身依赖脚本回发, 这里只做连通性检查
func Probe(ctx context.Context, cfg models.HarvestConfig, headers models.HeaderProvider) (*ProbeReport, error) {
	if err := models.ValidateURL(cfg.TargetURL); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}

	c := colly.NewCollector(colly.StdlibContext(ctx))
	c.SetClient(&http.Client{
		Transport: &http.Transport{
			// 目标站点偶尔使用自签名证书
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		Timeout: cfg.NavigationTimeout,
	})
	c.SetCookieJar(jar)
	c.SetRequestTimeout(cfg.NavigationTimeout)

	var extra http.Header
	if headers != nil {
		if extra, err = headers.GetHeaders(); err != nil {
			return nil, fmt.Errorf("获取HTTP头部失败: %w", err)
		}
	}

	report := &ProbeReport{RequestURL: cfg.TargetURL}
	var parseErr error
	start := time.Now()

	c.OnRequest(func(r *colly.Request) {
		for name, values := range extra {
			for _, v := range values {
				r.Headers.Add(name, v)
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		report.FinalURL = r.Request.URL.String()
		report.StatusCode = r.StatusCode
		report.Encoding = r.Headers.Get("Content-Encoding")

		body, err := decompressResponse(report.Encoding, r.Body)
		if err != nil {
			utils.Warnf("解压响应失败 (编码=%s): %v", report.Encoding, err)
			body = r.Body
		}
		parseErr = inspectForm(report, cfg, body)
	})

	var reqErr error
	c.OnError(func(r *colly.Response, err error) {
		reqErr = err
		if r != nil {
			report.StatusCode = r.StatusCode
		}
	})

	if err := c.Visit(cfg.TargetURL); err != nil && reqErr == nil {
		reqErr = err
	}
	c.Wait()
	report.Elapsed = time.Since(start)

	if reqErr != nil {
		return report, fmt.Errorf("请求目标页失败: %w", reqErr)
	}
	if parseErr != nil {
		return report, parseErr
	}
	return report, nil
}

func inspectForm(report *ProbeReport, cfg models.HarvestConfig, body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("解析目标页失败: %w", err)
	}

	report.LoginGate = strings.Contains(report.FinalURL, cfg.LoginMarker)

	guest := strings.ToLower(cfg.GuestText)
	doc.Find(`button, input[type=submit], input[type=button], a`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(s.Text() + s.AttrOr("value", ""))
		if guest != "" && strings.Contains(text, guest) {
			report.GuestButton = true
			return false
		}
		return true
	})

	report.SelectCount = doc.Find("select").Length()
	for _, f := range models.CascadeOrder {
		if doc.Find(f.Selector()).Length() > 0 {
			report.Fields = append(report.Fields, f.String())
		}
	}
	return nil
}

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		r = fr
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", contentEncoding, err)
	}
	return out, nil
}
