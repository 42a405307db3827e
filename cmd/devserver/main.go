package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/auth"
	"pingme-link/internal/config"
	"pingme-link/internal/model"
	"pingme-link/internal/server"
	"pingme-link/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)

	secret := cfg.SessionSecret
	if secret == "" {
		// Dev convenience: sessions do not survive a restart.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatal(err)
		}
		secret = hex.EncodeToString(buf)
		log.Printf("PINGME_SESSION_SECRET not set, using an ephemeral secret")
	}

	st := store.New()
	seedDemoUsers(st)

	tokenCfg := auth.TokenConfig{
		Secret: secret,
		Expiry: cfg.TokenExpiry,
		Issuer: "pingme-link",
	}

	router, _ := server.NewRouter(server.Deps{
		Store:       st,
		TokenConfig: tokenCfg,
		CodeTTL:     cfg.CodeExpiry,
	})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}

func seedDemoUsers(st *store.Store) {
	for _, p := range []model.Profile{
		{ID: "u-ada", FullName: "Ada Lovelace", Email: "ada@example.com"},
		{ID: "u-grace", FullName: "Grace Hopper", Email: "grace@example.com"},
		{ID: "u-alan", FullName: "Alan Turing", Email: "alan@example.com"},
	} {
		st.SeedUser(p)
	}
	log.Printf("seeded %d demo users", 3)
}
