package controllers

import (
	"github.com/studymate/backend-go/internal/extract"
	"github.com/studymate/backend-go/internal/pipeline"
	"github.com/studymate/backend-go/internal/repository"
	"github.com/studymate/backend-go/internal/retrieval"
	"github.com/studymate/backend-go/internal/storage"
	"github.com/studymate/backend-go/internal/vector"
)

// Dependencies 控制器共享的服务依赖
// Beego每个请求都会反射新建控制器实例，依赖通过包级变量注入，在Prepare里取用
type Dependencies struct {
	DocumentRepo repository.DocumentRepository
	ProjectRepo  repository.ProjectRepository
	Files        storage.FileStore
	Extractor    *extract.Manager
	Processor    *pipeline.Processor
	Assembler    *retrieval.Assembler
	Index        *vector.Index
}

var deps Dependencies

// Setup 注入控制器依赖，必须在路由注册前调用
func Setup(d Dependencies) {
	deps = d
}
