package main

import (
	"fmt"

	"waaku-golang/internal/middleware"
)

// Gera um par chave/hash para autenticação da API. A chave crua vai para os
// clientes (header X-API-Key); o hash vai para a env WAAKU_API_KEY.
func main() {
	raw, hash := middleware.GenerateAPIKey()

	fmt.Println("Chave de API gerada:")
	fmt.Println()
	fmt.Printf("  Chave (clientes, header X-API-Key): %s\n", raw)
	fmt.Printf("  Hash  (servidor, env WAAKU_API_KEY): %s\n", hash)
	fmt.Println()
	fmt.Println("Guarde a chave crua com segurança; ela não pode ser recuperada do hash.")
}
