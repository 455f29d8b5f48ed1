package main

import (
	"log"
	"os"
	"time"

	"bardic-editor/api"
	"bardic-editor/compiler"
	"bardic-editor/config"
)

func main() {
	log.Println("Bardic Editor Backend v0.1.0")

	// Configurazione: primo argomento oppure bardic.yaml nella cwd
	configPath := "bardic.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("❌ Errore configurazione: %v", err)
	}

	// Il wrapper può mancare (nessun Python): il selettore ripiega
	// sul parser strutturale e il backend resta utilizzabile
	var wrapper *compiler.BardicWrapper
	if !cfg.DisableCompiler {
		wrapper, err = compiler.NewBardicWrapper(
			cfg.PythonPath,
			time.Duration(cfg.CompileTimeoutSeconds)*time.Second,
		)
		if err != nil {
			log.Printf("⚠️  Compilatore esterno non disponibile: %v", err)
			log.Printf("⚠️  Verrà usato il parser strutturale")
			wrapper = nil
		} else if version, err := wrapper.ProbeVersion(); err == nil {
			log.Printf("✓ bardic: %s", version)
		}
	} else {
		log.Println("ℹ️  Compilatore esterno disabilitato dalla configurazione")
	}

	selector := compiler.NewSelector(wrapper, !cfg.DisableCompiler)

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.Port,
		Selector:       selector,
		Wrapper:        wrapper,
		PreviewTimeout: time.Duration(cfg.PreviewTimeoutSeconds) * time.Second,
		EnableCORS:     cfg.EnableCORS,
		Debug:          cfg.Debug,
	})

	if err := server.Start(); err != nil {
		log.Fatalf("❌ Errore server: %v", err)
	}
}
