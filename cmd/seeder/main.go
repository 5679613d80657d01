// Package main is the entry point for the catalog seeder.
//
// @title          Catalog Seeder API
// @version        1.0
// @description    Creates and seeds the product catalog schema, then exposes bootstrap status, health and read-only catalog endpoints.
// @host           localhost:8081
// @BasePath       /
// @schemes        http
package main

func main() {
	Execute()
}
