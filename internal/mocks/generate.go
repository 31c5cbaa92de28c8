package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Source --dir ../domain/picks --output domain/picks --outpkg picksmock --filename source_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Store --dir ../domain/picks --output domain/picks --outpkg picksmock --filename store_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Loader --dir ../domain/picks --output domain/picks --outpkg picksmock --filename loader_mock.go
