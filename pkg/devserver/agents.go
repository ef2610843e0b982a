package devserver

import (
	"sort"

	"ai-workspace-editor/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type assistant struct {
	dto.AssistantDTO
}

func (s *Server) handleListAgents(c *fiber.Ctx) error {
	userId := c.Locals("user_id").(string)

	s.mu.RLock()
	list := make([]dto.AssistantDTO, 0)
	for _, a := range s.assistants {
		if a.UserId == userId {
			list = append(list, a.AssistantDTO)
		}
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].AssistantName < list[j].AssistantName })
	return c.JSON(list)
}

func (s *Server) handleCreateAgent(c *fiber.Ctx) error {
	name, provider := c.Query("assistant_name"), c.Query("llm_provider")
	if name == "" || provider == "" {
		return detail(c, fiber.StatusUnprocessableEntity, "assistant_name and llm_provider are required")
	}

	a := &assistant{AssistantDTO: dto.AssistantDTO{
		UserId:           c.Locals("user_id").(string),
		AssistantId:      uuid.NewString(),
		AssistantName:    name,
		LlmProvider:      provider,
		Reflections:      dto.Reflections{StyleGuidelines: []string{}, GeneralFacts: []string{}},
		UserDefinedRules: []string{},
	}}

	s.mu.Lock()
	s.assistants[a.AssistantId] = a
	s.mu.Unlock()

	return c.JSON(a.AssistantDTO)
}

func (s *Server) handleDeleteAgent(c *fiber.Ctx) error {
	id := c.Query("assistant_id")
	userId := c.Locals("user_id").(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assistants[id]
	if !ok || a.UserId != userId {
		return detail(c, fiber.StatusNotFound, "Assistant not found")
	}
	delete(s.assistants, id)
	return c.JSON(fiber.Map{"messages": "Assistant deleted"})
}

func (s *Server) handleUpdateAgent(c *fiber.Ctx) error {
	var req dto.UpdateAssistantRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	userId := c.Locals("user_id").(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assistants[req.AssistantId]
	if !ok || a.UserId != userId {
		return detail(c, fiber.StatusNotFound, "Assistant not found")
	}
	a.AssistantName = req.AssistantName
	if req.LlmProvider != "" {
		a.LlmProvider = req.LlmProvider
	}
	a.Reflections = req.Reflections
	a.UserDefinedRules = req.UserDefinedRules
	return c.JSON(a.AssistantDTO)
}
