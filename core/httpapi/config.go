package httpapi

// Routes holds the paths of the push server endpoints. An empty path
// disables its route.
type Routes struct {
	Sub  string `env:"ROUTE_SUB" envDefault:"/bitrix/sub/"`
	Pub  string `env:"ROUTE_PUB" envDefault:"/bitrix/pub/"`
	Rest string `env:"ROUTE_REST" envDefault:"/bitrix/rest/"`
	Stat string `env:"ROUTE_STAT" envDefault:"/server-stat/"`
}

// DefaultRoutes returns the stock endpoint paths.
func DefaultRoutes() Routes {
	return Routes{
		Sub:  "/bitrix/sub/",
		Pub:  "/bitrix/pub/",
		Rest: "/bitrix/rest/",
		Stat: "/server-stat/",
	}
}
