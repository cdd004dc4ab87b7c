package models

var Models = []interface{}{
	&User{},
	&OAuthIdentity{},
	&TestingService{},
	&WorkflowRegistry{},
	&HostingService{},
	&Workflow{},
	&WorkflowVersion{},
	&WorkflowRegistration{},
	&TestSuite{},
	&TestInstance{},
	&Subscription{},
	&Notification{},
	&UserNotification{},
	&GithubWorkflowRegistry{},
	&GithubWorkflowVersion{},
	&NamedLock{},
}
