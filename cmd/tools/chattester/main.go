package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/pac-chat/backend/internal/config"
	"github.com/zhouzirui/pac-chat/backend/internal/service/ai"
	"github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/service/identity"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
	"github.com/zhouzirui/pac-chat/backend/internal/store/memory"
	"github.com/zhouzirui/pac-chat/backend/internal/store/postgrest"
	"github.com/zhouzirui/pac-chat/backend/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: complete 或 store")
	text := flag.String("text", "Hello", "complete 模式的输入文本")
	raw := flag.Bool("raw", false, "complete 模式下不追加西班牙语后缀")
	email := flag.String("email", "", "store 模式使用的用户邮箱")
	query := flag.String("q", "", "store 模式下按标题搜索")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "complete" && *mode != "store" {
		flag.Usage()
		log.Fatal("请通过 -mode=complete 或 -mode=store 指定测试模式")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "complete":
		runComplete(ctx, cfg, *text, *raw)
	case "store":
		runStore(ctx, cfg, *email, *query)
	}
}

func runComplete(ctx context.Context, cfg *config.Config, text string, raw bool) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("complete 模式需要通过 -text 提供输入文本")
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("模型初始化失败: %v", err)
	}
	svc, err := ai.NewService(ctx, chatModel)
	if err != nil {
		log.Fatalf("AI 服务初始化失败: %v", err)
	}

	prompt := text
	if !raw {
		prompt += chat.ResponseLanguageSuffix
	}

	log.Printf("开始补全测试: provider=%s model=%s prompt=%q", cfg.AI.Provider, cfg.AI.Model, prompt)
	start := time.Now()
	reply, err := svc.Complete(ctx, prompt)
	if err != nil {
		log.Fatalf("补全调用失败: %v", err)
	}

	log.Printf("补全成功: elapsed=%s reply=%q", time.Since(start).Round(time.Millisecond), reply)
}

func runStore(ctx context.Context, cfg *config.Config, email, query string) {
	if strings.TrimSpace(email) == "" {
		log.Fatal("store 模式需要通过 -email 指定用户邮箱")
	}

	st, closeStore := openStore(ctx, cfg.Store)
	defer closeStore()

	userID, err := identity.NewResolver(st).Resolve(ctx, email)
	if err != nil {
		log.Fatalf("用户解析失败: %v", err)
	}
	log.Printf("用户解析成功: email=%s id=%s", email, userID)

	chats, err := st.ListChats(ctx, userID)
	if query != "" {
		chats, err = st.SearchChats(ctx, userID, query)
	}
	if err != nil {
		log.Fatalf("读取聊天列表失败: %v", err)
	}

	log.Printf("共 %d 个聊天", len(chats))
	for _, c := range chats {
		messages, err := st.GetMessages(ctx, c.ID)
		if err != nil {
			log.Printf("  %s %q: 读取消息失败: %v", c.ID, c.Title, err)
			continue
		}
		log.Printf("  %s %s %q messages=%d", c.CreatedAt.Format(time.RFC3339), c.ID, c.Title, len(messages))
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func()) {
	switch cfg.Driver {
	case config.StorePostgREST:
		st, err := postgrest.New(postgrest.Config{BaseURL: cfg.PostgRESTURL, APIKey: cfg.PostgRESTAPIKey, Timeout: cfg.Timeout}, nil)
		if err != nil {
			log.Fatalf("PostgREST 初始化失败: %v", err)
		}
		return st, func() {}
	case config.StoreSQLite, config.StorePostgres:
		st, err := sqlstore.Open(sqlstore.Config{Driver: cfg.Driver, DSN: cfg.DSN, SlowThreshold: cfg.SlowThreshold})
		if err != nil {
			log.Fatalf("数据库连接失败: %v", err)
		}
		if err := st.Migrate(ctx); err != nil {
			log.Fatalf("数据库迁移失败: %v", err)
		}
		return st, func() { _ = st.Close() }
	default:
		log.Println("[WARN] STORE_DRIVER=memory，数据仅在本进程内有效")
		return memory.New(), func() {}
	}
}
