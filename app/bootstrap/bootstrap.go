package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/studymate/backend-go/app/controllers"
	"github.com/studymate/backend-go/internal/config"
	"github.com/studymate/backend-go/internal/database"
	"github.com/studymate/backend-go/internal/di"
	"github.com/studymate/backend-go/internal/events"
	"github.com/studymate/backend-go/internal/extract"
	"github.com/studymate/backend-go/internal/logger"
	"github.com/studymate/backend-go/internal/pipeline"
	"github.com/studymate/backend-go/internal/repository"
	"github.com/studymate/backend-go/internal/retrieval"
	"github.com/studymate/backend-go/internal/storage"
	"github.com/studymate/backend-go/internal/vector"
)

// App 持有需要在退出时清理的资源
type App struct {
	cleanupTasks []func() error

	Processor *pipeline.Processor
}

// Init 初始化配置、日志、数据库连接和文档处理流水线
func Init() (*App, error) {
	// .env不存在不算错误
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	app := &App{}

	if _, err := database.InitDB(); err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseDB)

	// Redis可选，失败不阻塞启动
	if _, err := database.InitRedis(); err != nil {
		logger.Warn("failed to initialize redis", zap.Error(err))
	} else {
		app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
	}

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		return nil, err
	}

	err := di.Invoke(func(
		docRepo repository.DocumentRepository,
		projectRepo repository.ProjectRepository,
		files storage.FileStore,
		manager *extract.Manager,
		index *vector.Index,
		processor *pipeline.Processor,
		assembler *retrieval.Assembler,
		producer *events.Producer,
	) {
		app.Processor = processor
		app.cleanupTasks = append(app.cleanupTasks, producer.Close)

		controllers.Setup(controllers.Dependencies{
			DocumentRepo: docRepo,
			ProjectRepo:  projectRepo,
			Files:        files,
			Extractor:    manager,
			Processor:    processor,
			Assembler:    assembler,
			Index:        index,
		})
	})
	if err != nil {
		return nil, err
	}

	app.Processor.Start()
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		app.Processor.Stop()
		return nil
	})

	return app, nil
}

// Shutdown 逆序执行清理任务并刷新日志缓冲
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("cleanup error: %v\n", err)
		}
	}
	logger.Sync()
}
