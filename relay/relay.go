// Package relay forwards browser calls to the ERP and gateway APIs and
// serves the operator UI bundle.
package relay

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/sirupsen/logrus"
)

const (
	GatewayPrefix   = "/proxy/digisac"
	ERPPrefix       = "/proxy/omie"
	TargetURLHeader = "X-Target-Url"
)

type Relay struct {
	erpTarget *url.URL
	transport http.RoundTripper
	logger    *logrus.Logger
}

// New builds a relay whose ERP upstream is erpBaseURL. A nil transport uses
// http.DefaultTransport.
func New(erpBaseURL string, transport http.RoundTripper) (*Relay, error) {
	target, err := parseUpstream(erpBaseURL)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Relay{erpTarget: target, transport: transport, logger: config.GetLogger()}, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errInvalidUpstream}
	}
	return u, nil
}

// Register mounts both relays on r.
func (rl *Relay) Register(r gin.IRouter) {
	r.Any(GatewayPrefix+"/*path", rl.Gateway())
	r.Any(ERPPrefix+"/*path", rl.ERP())
}

// Gateway relays to the host named by the X-Target-Url header.
func (rl *Relay) Gateway() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(TargetURLHeader))
		if raw == "" {
			c.String(http.StatusBadRequest, "Missing target URL")
			return
		}
		target, err := parseUpstream(raw)
		if err != nil {
			c.String(http.StatusBadRequest, "Invalid target URL")
			return
		}
		rl.proxy(target, GatewayPrefix, "Proxy Error: Could not reach DigiSac server").ServeHTTP(c.Writer, c.Request)
	}
}

// ERP relays to the fixed ERP base URL.
func (rl *Relay) ERP() gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.proxy(rl.erpTarget, ERPPrefix, "Proxy Error: Could not reach Omie server").ServeHTTP(c.Writer, c.Request)
	}
}

func (rl *Relay) proxy(target *url.URL, prefix, failure string) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: rl.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.Out.Header.Del(TargetURLHeader)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			rl.logger.WithFields(logrus.Fields{
				"upstream": target.Host,
				"path":     r.URL.Path,
			}).Warn("relay failed: " + err.Error())
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(failure))
		},
	}
}

// Static serves the UI bundle in dir. Unknown paths outside /api get
// index.html so client-side routes survive a reload.
func Static(dir string) gin.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || path == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
			return
		}
		clean := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+path)))
		if info, err := os.Stat(clean); err == nil && !info.IsDir() {
			files.ServeHTTP(c.Writer, c.Request)
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
			return
		}
		c.File(index)
	}
}
