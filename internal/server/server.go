// Package server exposes a read-only HTTP view of the repositories:
// stored files, attribution, name search, metrics and health.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/dedup"
	"github.com/roach88/plent/internal/repo"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Repos  int    `json:"repos"`
}

// File is one stored artifact in the /files listing.
type File struct {
	Repo string `json:"repo"`
	Dir  string `json:"dir"`
	ID   string `json:"id"`
}

// Blame is returned by /blame/:id.
type Blame struct {
	Repo  string `json:"repo"`
	ID    string `json:"id"`
	Owner string `json:"owner"`
}

// SearchHit is one /search result.
type SearchHit struct {
	Repo  string  `json:"repo"`
	Dir   string  `json:"dir"`
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Link  string  `json:"link,omitempty"`
}

// Server serves the read surface.
type Server struct {
	repos  []*repo.Repo
	index  *dedup.Index
	engine *gin.Engine
}

// New builds the routes. gatherer backs /metrics; nil uses the default
// registry.
func New(repos []*repo.Repo, index *dedup.Index, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{repos: repos, index: index, engine: gin.New()}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.engine.GET("/files", s.handleFiles)
	s.engine.GET("/files/:id", s.handleFile)
	s.engine.GET("/blame/:id", s.handleBlame)
	s.engine.GET("/search", s.handleSearch)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Repos: len(s.repos)})
}

func (s *Server) handleFiles(c *gin.Context) {
	out := []File{}
	for _, r := range s.repos {
		files, err := r.Files()
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		for _, f := range files {
			out = append(out, File{Repo: r.Name(), Dir: f.Dir, ID: f.ID.Hex()})
		}
	}
	c.JSON(http.StatusOK, out)
}

// find resolves the :id path parameter, with or without an extension.
func (s *Server) find(c *gin.Context) (*repo.Repo, repo.StoredFile, bool) {
	raw := c.Param("id")
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	id, err := artifact.ParseHex(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id must be hex"})
		return nil, repo.StoredFile{}, false
	}
	for _, r := range s.repos {
		if f, ok := r.Find(id); ok {
			return r, f, true
		}
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "no artifact " + id.Hex()})
	return nil, repo.StoredFile{}, false
}

func (s *Server) handleFile(c *gin.Context) {
	r, f, ok := s.find(c)
	if !ok {
		return
	}
	data, err := r.ReadRaw(f.Dir, f.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	name := f.ID.Hex() + "." + r.Codec().Ext()
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) handleBlame(c *gin.Context) {
	r, f, ok := s.find(c)
	if !ok {
		return
	}
	owner, err := r.Attributor(c.Request.Context(), f.Dir, f.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Blame{Repo: r.Name(), ID: f.ID.Hex(), Owner: owner})
}

func (s *Server) handleSearch(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name is required"})
		return
	}
	hits, err := s.index.Fuzzy(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		hit := SearchHit{
			Repo:  h.Repo,
			Dir:   h.Dir,
			ID:    h.ID.Hex(),
			Name:  artifact.StripColors(h.Name),
			Score: h.Score,
		}
		if h.Located {
			hit.Link = h.Origin.Link()
		}
		out = append(out, hit)
	}
	c.JSON(http.StatusOK, out)
}
