// Command example is a small end-to-end smoke test of the gomemfast
// client: set, get, incr, and a namespaced multi-get against whatever
// servers GOMEMFAST_SERVERS names.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/cachemir/gomemfast/pkg/config"
	"github.com/cachemir/gomemfast/pkg/memcache"
)

func main() {
	cfg := config.Load()
	if len(cfg.Servers) == 0 {
		cfg.Servers = []config.Server{{Address: "127.0.0.1:11211", Weight: 1}}
	}

	client, ok, err := memcache.New(cfg, nil)
	if err != nil {
		log.Fatalf("memcache.New: %v", err)
	}
	if !ok {
		log.Printf("warning: one or more options fell back to a safe default")
	}
	defer client.Close()

	ctx := context.Background()

	fmt.Println("=== gomemfast client example ===")

	if stored, err := client.Set(ctx, "user:1", "jane", 0); err != nil {
		log.Printf("SET failed: %v", err)
	} else {
		fmt.Printf("SET user:1 = jane -> %t\n", stored)
	}

	if value, ok, err := client.Get(ctx, "user:1"); err != nil {
		log.Printf("GET failed: %v", err)
	} else if !ok {
		fmt.Println("GET user:1 -> miss")
	} else {
		fmt.Printf("GET user:1 = %v\n", value)
	}

	if value, found, err := client.Incr(ctx, "hits", 1); err != nil {
		log.Printf("INCR failed: %v", err)
	} else {
		fmt.Printf("INCR hits = %d (found=%t)\n", value, found)
	}

	items, err := client.GetMulti(ctx, []string{"user:1", "user:2", "hits"})
	if err != nil {
		log.Printf("GetMulti: some keys failed: %v", err)
	}
	for k, item := range items {
		fmt.Printf("GetMulti %s = %v\n", k, item.Value)
	}

	if versions, err := client.VersionAll(ctx); err != nil {
		log.Printf("VersionAll failed: %v", err)
	} else {
		for addr, v := range versions {
			fmt.Printf("version[%s] = %s\n", addr, v)
		}
	}
}
