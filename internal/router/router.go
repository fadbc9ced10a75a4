package router

import (
	"html/template"
	"io/fs"
	"path"

	"murmur/internal/handlers"
	"murmur/internal/middleware"
	"murmur/internal/services"
	"murmur/web"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options are the collaborators the HTTP surface needs.
type Options struct {
	Engine     *services.Engine
	Authors    services.AuthorDecoder
	Logger     *zap.Logger
	CORSOrigin string
	// Registry receives the HTTP metrics and is served on /metrics.
	Registry   *prometheus.Registry
}

// New builds the gin engine with middleware, templates and routes.
func New(opts Options) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(opts.Logger))
	if opts.Registry != nil {
		r.Use(middleware.Metrics(opts.Registry))
	}
	r.Use(middleware.CORS(opts.CORSOrigin))

	renderer, err := loadTemplates(web.Templates)
	if err != nil {
		return nil, err
	}
	r.HTMLRender = renderer

	RegisterRoutes(r, opts)
	return r, nil
}

func RegisterRoutes(r *gin.Engine, opts Options) {
	// Handlers
	commentHandler := handlers.NewCommentHandler(opts.Engine, opts.Logger)
	voteHandler := handlers.NewVoteHandler(opts.Engine, opts.Logger)
	reportHandler := handlers.NewReportHandler(opts.Engine, opts.Logger)

	r.Use(middleware.LoadAuthor(opts.Authors))

	// Public Routes
	r.GET("/thread/:name", commentHandler.GetThread)               // comments of a thread
	r.GET("/comment", commentHandler.List)                         // all comments, newest first
	r.POST("/report/:id", reportHandler.Report)                    // report a comment to moderators
	r.GET("/delete_reported/:token", reportHandler.DeleteReported) // moderation link
	r.GET("/healthz", handlers.Health(opts.Engine))                // liveness
	if opts.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	// Routes that need an author token
	authorized := r.Group("/")
	authorized.Use(middleware.AuthorRequired())
	{
		authorized.POST("/thread/:name", commentHandler.PostTopLevel) // new top-level comment
		authorized.POST("/comment/:id", commentHandler.Reply)         // reply to a comment
		authorized.PUT("/comment/:id", commentHandler.Edit)           // edit own comment
		authorized.DELETE("/comment/:id", commentHandler.Delete)      // delete or hide own comment
		authorized.POST("/vote/:id", voteHandler.Vote)                // like / dislike
	}
}

func loadTemplates(fsys fs.FS) (multitemplate.Renderer, error) {
	r := multitemplate.NewRenderer()

	layouts, err := fs.Glob(fsys, "templates/layouts/*.html")
	if err != nil {
		return nil, err
	}

	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
	}

	// Manual registration to ensure keys match handler expectation
	views := map[string]string{
		"error.html":              "templates/views/error.html",
		"moderation/deleted.html": "templates/views/moderation/deleted.html",
	}
	for name, view := range views {
		files := append([]string{view}, layouts...)
		t, err := template.New(path.Base(view)).Funcs(funcMap).ParseFS(fsys, files...)
		if err != nil {
			return nil, err
		}
		r.Add(name, t)
	}
	return r, nil
}
