package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bsaid97/go-patch-editor/handlers"
	"github.com/bsaid97/go-patch-editor/store"
)

func main() {
	log.Printf("=== Starting Patch Editor Server ===")
	_ = godotenv.Load(".env")

	var patchStore *store.PatchStore
	if os.Getenv("DATABASE_URL") != "" || os.Getenv("PGHOST") != "" {
		st, err := store.OpenFromEnv()
		if err != nil {
			log.Fatalf("failed to open patch store: %v", err)
		}
		defer st.Close()
		if err := st.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("failed to ensure schema: %v", err)
		}
		patchStore = st
		log.Printf("patch store connected")
	} else {
		log.Printf("no patch store configured; sessions load from uploads only")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/simplify", handlers.SimplifyHandler)
	mux.HandleFunc("/adjacency", handlers.AdjacencyHandler)
	mux.HandleFunc("/analyse-edit", handlers.AnalyseHandler)

	session := handlers.NewSessionHandler(patchStore)
	session.Register(mux)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Registered all HTTP handlers")
	log.Printf("Server is listening on port %s...", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
