package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.DeviceInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}

	pipeline := s.router.Group("/pipeline")
	{
		pipeline.GET("/stats", s.pipelineHandler.GetStats)
	}
}
