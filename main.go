package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/swaggo/files"
	"github.com/swaggo/gin-swagger"

	"larkexport/internal/api"
	"larkexport/internal/lark"
	"larkexport/internal/repository"
	"larkexport/internal/service"
	"larkexport/internal/sink"

	"github.com/redis/go-redis/v9"
)

func main() {
	appID := getEnv("APP_ID", "")
	appSecret := getEnv("APP_SECRET", "")
	if appID == "" || appSecret == "" {
		log.Fatalf("APP_ID and APP_SECRET must be set")
	}
	larkBaseURL := getEnv("LARK_BASE_URL", lark.DefaultBaseURL)
	spreadsheetID := getEnv("SPREADSHEET_ID", "")
	credentialsFile := getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	sinkMode := getEnv("EXPORT_SINK", "file")
	allowedOrigin := getEnv("URL_UI", "http://localhost:3000")
	scheduleChatID := getEnv("SCHEDULE_CHAT_ID", "")

	larkClient := lark.NewClient(larkBaseURL, appID, appSecret)

	var repo service.ExportRepository
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		connStr := "host=" + dbHost +
			" port=" + getEnv("DB_PORT", "5432") +
			" user=" + getEnv("DB_USER", "postgres") +
			" password=" + getEnv("DB_PASSWORD", "postgres") +
			" dbname=" + getEnv("DB_NAME", "postgres") +
			" sslmode=disable"
		pg, err := repository.NewPostgresRepo(connStr)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		repo = pg
		log.Println("Connected to PostgreSQL")
	}

	var cache service.NameCache
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisAddr := redisHost + ":" + getEnv("REDIS_PORT", "6379")
		cacheClient := initRedis(redisAddr, getEnv("REDIS_PASSWORD", ""))
		cache = &RedisNameCache{client: cacheClient}
		log.Println("Connected to Redis")
	}

	var sheetSink service.SheetSink
	if sinkMode == "sheet" || scheduleChatID != "" {
		gs, err := sink.NewGoogleSheetSink(context.Background(), credentialsFile)
		if err != nil {
			log.Fatalf("Failed to initialize Google Sheets client: %v", err)
		}
		sheetSink = gs
		log.Println("Google Sheets client ready")
	}

	serv := service.NewExportService(larkClient, sink.NewExcelSink(), sheetSink, cache, repo, spreadsheetID)

	var scheduler *service.Scheduler
	if scheduleChatID != "" {
		intervalMin, err := strconv.Atoi(getEnv("SCHEDULE_INTERVAL_MIN", "60"))
		if err != nil || intervalMin <= 0 {
			log.Fatalf("SCHEDULE_INTERVAL_MIN must be a positive integer")
		}
		scheduler = service.NewScheduler(serv, scheduleChatID, time.Duration(intervalMin)*time.Minute)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	r := gin.Default()
	origins := []string{"http://localhost:3000"}
	if allowedOrigin != "" && allowedOrigin != origins[0] {
		origins = append(origins, allowedOrigin)
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler := api.NewAPIHandler(scheduler, serv, sinkMode)
	larkGroup := r.Group("/lark")
	{
		larkGroup.GET("", handler.ListChats)
		larkGroup.POST("/export", handler.ExportMessages)
		larkGroup.GET("/exports", handler.ListExports)
		larkGroup.POST("/schedule/start", handler.StartAuto)
		larkGroup.POST("/schedule/stop", handler.StopAuto)
	}

	port := getEnv("PORT", "4200")
	log.Printf("Server starting on port %s...", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func initRedis(addr string, password string) *redis.Client {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}
	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	return client
}

// RedisNameCache memoizes open ID to display name lookups across
// exports. Entries expire so renamed users are eventually picked up.
type RedisNameCache struct {
	client *redis.Client
}

const nameCacheTTL = 24 * time.Hour

func (rc *RedisNameCache) Name(ctx context.Context, openID string) (string, bool) {
	val, err := rc.client.Get(ctx, "larkname:"+openID).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (rc *RedisNameCache) StoreName(ctx context.Context, openID, name string) error {
	return rc.client.Set(ctx, "larkname:"+openID, name, nameCacheTTL).Err()
}
