package main

import "productmatch/internal/app"

func main() {
	app.Main()
}
