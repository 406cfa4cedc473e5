package main

import (
	"SocialSync/config"
	"SocialSync/pkg/util"
	"flag"
	"fmt"
	"os"
)

// 本地联调用：按配置里的密钥签发主体令牌
func main() {
	configPath := flag.String("config", os.Getenv("SYNC_CONFIG"), "配置文件路径")
	email := flag.String("email", "alice@example.com", "主体邮箱")
	principalID := flag.String("id", "", "主体 ID，默认与邮箱相同")
	deviceID := flag.String("device", "", "绑定设备，留空表示不绑定")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	id := *principalID
	if id == "" {
		id = *email
	}

	signer := util.NewTokenSigner(cfg.Server.JWTSecret, cfg.Server.JWTIssuer, cfg.Server.TokenTTL)
	token, err := signer.Sign(id, *email, *deviceID)
	if err != nil {
		fmt.Printf("签发失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("主体: %s (%s)\n", *email, id)
	if *deviceID != "" {
		fmt.Printf("设备: %s\n", *deviceID)
	}
	fmt.Printf("有效期: %s\n", cfg.Server.TokenTTL)
	fmt.Printf("令牌: %s\n", token)
}
