package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/studymate/backend-go/app/controllers"
)

// Init 注册全部路由，必须在controllers.Setup之后调用
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	projectController := &controllers.ProjectController{}
	web.Router("/api/v1/projects", projectController, "post:Create")
	web.Router("/api/v1/projects/:id", projectController, "get:Get;delete:Delete")
	web.Router("/api/v1/projects/:id/process", projectController, "post:Process")
	web.Router("/api/v1/projects/:id/retrieve", projectController, "post:Retrieve")
	web.Router("/api/v1/projects/:id/index/stats", projectController, "get:IndexStats")

	documentController := &controllers.DocumentController{}
	web.Router("/api/v1/projects/:id/documents", documentController, "get:List;post:Upload")
	web.Router("/api/v1/documents/:id", documentController, "get:Get;delete:Delete")
	web.Router("/api/v1/documents/:id/process", documentController, "post:Process")
	web.Router("/api/v1/documents/:id/reprocess", documentController, "post:Reprocess")

	web.Router("/api/v1/processing/status", &controllers.ProcessingController{}, "get:Status")
}
