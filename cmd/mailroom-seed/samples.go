package main

import "github.io/infrasutra/mailroom/internal/store"

var sampleEmails = []store.Fields{
	{
		To:      "john.doe@example.com",
		Cc:      "manager@example.com",
		Subject: "Welcome to the Team!",
		Body:    "Hi John,\n\nWelcome to our team! We are excited to have you join us. Please let me know if you have any questions.\n\nBest regards,\nSarah",
	},
	{
		To:      "sarah.wilson@example.com",
		Subject: "Project Update - Q4 Planning",
		Body:    "Dear Sarah,\n\nI wanted to give you a quick update on the Q4 planning project. We have completed the initial research phase and are ready to move into the implementation stage.\n\nThe next meeting is scheduled for Thursday at 2 PM.\n\nThanks,\nMike",
	},
	{
		To:      "team@example.com",
		Cc:      "hr@example.com",
		Bcc:     "ceo@example.com",
		Subject: "Company All-Hands Meeting",
		Body:    "Dear Team,\n\nWe will be having our quarterly all-hands meeting next Friday at 10 AM in the main conference room.\n\nAgenda:\n- Q3 Results\n- Q4 Objectives\n- New team introductions\n- Q&A session\n\nPlease mark your calendars.\n\nBest,\nHR Team",
	},
	{
		To:      "alex.johnson@example.com",
		Subject: "Code Review Request",
		Body:    "Hi Alex,\n\nCould you please review the pull request I submitted yesterday? It includes the new user authentication feature we discussed.\n\nThe PR number is #142.\n\nThanks!\nEmily",
	},
	{
		To:      "support@example.com",
		Subject: "Login Issue",
		Body:    "Hello,\n\nI am experiencing issues logging into my account. I keep getting an \"invalid credentials\" error even though I am sure my password is correct.\n\nCould you please help me reset my password?\n\nAccount email: customer@email.com\n\nThank you,\nCustomer Support Request",
	},
}
