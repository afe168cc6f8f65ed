package main

// General API documentation for swaggo. Run `swag init -g cmd/batchd/docs.go` to regenerate docs.
//
// @title           batchd API
// @version         1.0
// @description     HTTP API for micro-batched tensor inference.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
