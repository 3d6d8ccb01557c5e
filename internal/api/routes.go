// Package api contains the API routes for the Comdex API
package api

import (
	"fmt"

	"github.com/comdex/comdexapi/internal/api/handlers"
	"github.com/comdex/comdexapi/internal/api/middleware"
	"github.com/comdex/comdexapi/internal/config"
	"github.com/comdex/comdexapi/internal/service"
	"github.com/comdex/comdexapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
)

// Services are the services the routes are served by
type Services struct {
	Session    *service.SessionService
	Index      *service.IndexService
	Manage     *service.ManageService
	Voting     *service.VotingService
	Investment *service.InvestmentService
	Account    *service.AccountService
	Cron       handlers.JobRunner
	Stream     *service.StreamService
}

// SetupRoutes configures the routes for the API
func SetupRoutes(e *echo.Echo, cfg *config.Config, s Services) {

	// Create a group for all API routes
	api := e.Group("/api")

	// Index route
	api.GET("/", indexRoute(cfg))

	auth := middleware.AuthMiddleware(s.Session)

	// Session routes
	sessionHandler := handlers.NewSessionHandler(s.Session)
	sessionGroup := api.Group("/session")
	sessionGroup.POST("/login", sessionHandler.Login)
	sessionGroup.POST("/signup", sessionHandler.Signup)
	sessionGroup.GET("/valid", sessionHandler.CheckSessionValid, auth)
	sessionGroup.DELETE("", sessionHandler.DeleteSession, auth)

	// Index routes (protected)
	indexHandler := handlers.NewIndexHandler(s.Index, s.Manage)
	api.GET("/dashboard", indexHandler.Dashboard, auth)
	indexGroup := api.Group("/indexes")
	indexGroup.Use(auth)
	indexGroup.GET("", indexHandler.ListIndexes)
	indexGroup.GET("/stats", indexHandler.GetIndexStats)
	indexGroup.GET("/:id", indexHandler.GetIndex)
	indexGroup.POST("/:id/:action", indexHandler.TransitionIndex)

	// Voting routes (protected)
	votingHandler := handlers.NewVotingHandler(s.Voting)
	votingGroup := api.Group("/voting")
	votingGroup.Use(auth)
	votingGroup.GET("/:index_id", votingHandler.GetVoting)
	votingGroup.POST("/:index_id/votes", votingHandler.SubmitVotes)
	votingGroup.GET("/sessions/:id/results", votingHandler.GetResults)

	// Investment routes (protected)
	investmentHandler := handlers.NewInvestmentHandler(s.Investment)
	investmentGroup := api.Group("/investments")
	investmentGroup.Use(auth)
	investmentGroup.GET("", investmentHandler.ListInvestments)
	investmentGroup.POST("", investmentHandler.Invest)
	investmentGroup.GET("/:id/eligibility", investmentHandler.GetEligibility)
	investmentGroup.POST("/:id/:kind", investmentHandler.Settle)

	// Account routes (protected)
	accountHandler := handlers.NewAccountHandler(s.Account)
	accountGroup := api.Group("/account")
	accountGroup.Use(auth)
	accountGroup.GET("/profile", accountHandler.GetProfile)
	accountGroup.GET("/credits", accountHandler.GetCredits)
	accountGroup.POST("/credits/add", accountHandler.AddCredits)
	accountGroup.POST("/credits/remove", accountHandler.RemoveCredits)

	// Cron routes (admins only)
	cronHandler := handlers.NewCronHandler(s.Cron)
	cronGroup := api.Group("/cron")
	cronGroup.Use(auth, middleware.AdminMiddleware(cfg.IsAdmin))
	cronGroup.POST("/:job", cronHandler.RunJob)

	// Stream routes (protected)
	streamHandler := handlers.NewStreamHandler(s.Stream)
	streamGroup := api.Group("/stream")
	streamGroup.Use(auth)
	streamGroup.GET("/index-status", streamHandler.StreamIndexStatus)
	streamGroup.GET("/events", streamHandler.GetStatusEvents)
}

// indexRoute reports the API name and version
func indexRoute(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		return response.SuccessResponse(c, fmt.Sprintf("%s %s", cfg.APIName, cfg.APIVersion))
	}
}
