package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/EmpoweredVote/tract-census/internal/config"
	"github.com/EmpoweredVote/tract-census/internal/db"
	"github.com/EmpoweredVote/tract-census/internal/middleware"
	"github.com/EmpoweredVote/tract-census/internal/refresh"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg := config.LoadFromEnv()
	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	svc := refresh.NewService(cfg, refresh.PostGISRunner(gdb))

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(middleware.CORSMiddleware)
	r.Get("/", RootHandler)
	r.Mount("/refresh", refresh.SetupRoutes(svc))

	log.Printf("Server listening on port :%s...", port)
	if err := http.ListenAndServe("0.0.0.0:"+port, r); err != nil {
		log.Fatal(err)
	}
}
