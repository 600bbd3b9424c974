package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"mochimon-server-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	issueToken := flag.String("issue-token", "", "print an API bearer token for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	if *issueToken != "" {
		token, err := bootstrap.IssueToken(*configPath, *issueToken, *tokenTTL)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	fmt.Printf("[%s] [INFO] [Bootstrap] 开始启动 mochimon-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), bootstrap.Options{ConfigPath: *configPath}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "mochimon-server failed: %v\n", err)
		os.Exit(1)
	}
}
